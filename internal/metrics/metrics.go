// Package metrics exposes sync activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formsync"

// Metrics holds the sync collectors. A nil *Metrics records nothing.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	FormsSynced       prometheus.Counter
	SubmissionsSynced prometheus.Counter
	FormErrors        *prometheus.CounterVec
	ActiveTasks       prometheus.Gauge
	ValidationsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_cycles_total",
				Help:      "Sync cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_cycle_duration_seconds",
				Help:      "Time taken by one sync cycle in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FormsSynced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forms_synced_total",
				Help:      "Forms upserted into the document store",
			},
		),
		SubmissionsSynced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_synced_total",
				Help:      "Submissions upserted into the document store",
			},
		),
		FormErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "form_submission_errors_total",
				Help:      "Per-form submission fetch or store failures",
			},
			[]string{"project_id"},
		),
		ActiveTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sync_tasks",
				Help:      "Sync tasks currently registered",
			},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_validations_total",
				Help:      "Credential validations by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.FormsSynced,
		m.SubmissionsSynced,
		m.FormErrors,
		m.ActiveTasks,
		m.ValidationsTotal,
	)

	return m
}

// CycleFinished records one cycle's outcome.
func (m *Metrics) CycleFinished(ok bool, forms, submissions, formErrors int, projectID string, took time.Duration) {
	if m == nil {
		return
	}

	result := "success"
	if !ok {
		result = "failed"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.FormsSynced.Add(float64(forms))
	m.SubmissionsSynced.Add(float64(submissions))
	if formErrors > 0 {
		m.FormErrors.WithLabelValues(projectID).Add(float64(formErrors))
	}
}

// TaskStarted increments the active task gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.ActiveTasks.Inc()
}

// TaskStopped decrements the active task gauge.
func (m *Metrics) TaskStopped() {
	if m == nil {
		return
	}
	m.ActiveTasks.Dec()
}

// Validation records a credential validation; reason is empty on success.
func (m *Metrics) Validation(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	m.ValidationsTotal.WithLabelValues(reason).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
