package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/metrics"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/state"
)

// RegistryConfig tunes the sync loop.
type RegistryConfig struct {
	Interval           time.Duration
	PausedPollInterval time.Duration
}

// task is one project's running loop.
type task struct {
	projectID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Registry owns at most one sync loop per project. Persisted status
// decides whether a loop keeps going; the registry only tracks which
// loops are alive in this process.
type Registry struct {
	state    state.Store
	runner   CycleRunner
	metrics  *metrics.Metrics
	cfg      RegistryConfig
	now      func() time.Time
	logger   *events.Logger
	baseCtx  context.Context
	stopBase context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*task
	ctl   map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry(st state.Store, runner CycleRunner, cfg RegistryConfig, m *metrics.Metrics, logger *events.Logger) *Registry {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.PausedPollInterval <= 0 {
		cfg.PausedPollInterval = 10 * time.Second
	}

	baseCtx, stopBase := context.WithCancel(context.Background())

	return &Registry{
		state:    st,
		runner:   runner,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.WithField("component", "sync_registry"),
		baseCtx:  baseCtx,
		stopBase: stopBase,
		tasks:    make(map[string]*task),
		ctl:      make(map[string]*sync.Mutex),
	}
}

// lockProject serializes control operations on one project. Stop holds it
// across the wait and the status write, so no Start slips in between.
func (r *Registry) lockProject(projectID string) func() {
	r.mu.Lock()
	m, ok := r.ctl[projectID]
	if !ok {
		m = &sync.Mutex{}
		r.ctl[projectID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Start launches the loop for projectID and marks it syncing. A live loop
// makes this a no-op.
func (r *Registry) Start(ctx context.Context, projectID string) (*models.SyncStatus, error) {
	logger := r.logger.WithField("project_id", projectID)

	unlock := r.lockProject(projectID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[projectID]; ok {
		logger.Info("Sync task is already running")
		return r.state.GetStatus(ctx, projectID)
	}

	if r.baseCtx.Err() != nil {
		return nil, fmt.Errorf("start project %s: registry is shut down", projectID)
	}

	// Status goes first so the new loop sees syncing on its first read.
	status, err := r.state.SetStatus(ctx, projectID, models.StatusSyncing)
	if err != nil {
		return nil, fmt.Errorf("start project %s: %w", projectID, err)
	}

	taskCtx, cancel := context.WithCancel(r.baseCtx)
	t := &task{
		projectID: projectID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.tasks[projectID] = t
	r.metrics.TaskStarted()

	go r.loop(taskCtx, t)

	logger.Info("Started sync task")
	return status, nil
}

// Stop cancels the live loop, waits for it and marks the project paused.
// Without a live loop it returns the current status unchanged.
func (r *Registry) Stop(ctx context.Context, projectID string) (*models.SyncStatus, error) {
	logger := r.logger.WithField("project_id", projectID)

	unlock := r.lockProject(projectID)
	defer unlock()

	stopped, err := r.halt(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if !stopped {
		logger.Info("No active sync task found")
		return r.state.GetStatus(ctx, projectID)
	}

	status, err := r.state.SetStatus(ctx, projectID, models.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("stop project %s: %w", projectID, err)
	}

	logger.Info("Stopped sync task")
	return status, nil
}

// Pause stops the live loop like Stop. Without one, a syncing project is
// still marked paused so a loop in another process idles at its next
// status check; idle and paused projects are left unchanged.
func (r *Registry) Pause(ctx context.Context, projectID string) (*models.SyncStatus, error) {
	logger := r.logger.WithField("project_id", projectID)

	unlock := r.lockProject(projectID)
	defer unlock()

	stopped, err := r.halt(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if !stopped {
		current, err := r.state.GetStatus(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if current.Status != models.StatusSyncing {
			logger.WithField("status", string(current.Status)).Info("Project is not syncing")
			return current, nil
		}
	}

	status, err := r.state.SetStatus(ctx, projectID, models.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("pause project %s: %w", projectID, err)
	}

	logger.Info("Project paused")
	return status, nil
}

// Remove stops any live loop and deletes the project with its history.
func (r *Registry) Remove(ctx context.Context, projectID string) error {
	unlock := r.lockProject(projectID)
	defer unlock()

	if _, err := r.halt(ctx, projectID); err != nil {
		return err
	}

	return r.state.DeleteProject(ctx, projectID)
}

// halt cancels the loop for projectID and waits until it has exited.
// Persisted status is untouched.
func (r *Registry) halt(ctx context.Context, projectID string) (bool, error) {
	r.mu.Lock()
	t, ok := r.tasks[projectID]
	r.mu.Unlock()

	if !ok {
		return false, nil
	}

	t.cancel()

	select {
	case <-t.done:
		return true, nil
	case <-ctx.Done():
		return false, fmt.Errorf("wait for project %s to stop: %w", projectID, ctx.Err())
	}
}

// IsActive reports whether a loop is alive for projectID.
func (r *Registry) IsActive(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[projectID]
	return ok
}

// ActiveCount returns the number of live loops.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Snapshot joins persisted statuses with live registry membership.
func (r *Registry) Snapshot(ctx context.Context) ([]models.StatusSnapshot, error) {
	statuses, err := r.state.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.StatusSnapshot, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, models.StatusSnapshot{SyncStatus: st, IsActive: r.IsActive(st.ProjectID)})
	}
	return out, nil
}

// Shutdown cancels every loop and waits for them. Persisted status is
// left as is, so a restarted process reports syncing projects as inactive.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	r.stopBase()

	if len(tasks) > 0 {
		r.logger.WithField("tasks", len(tasks)).Info("Stopping sync tasks")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			select {
			case <-t.done:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("wait for project %s to stop: %w", t.projectID, gctx.Err())
			}
		})
	}

	return g.Wait()
}

// RunOnce runs a single cycle outside the loop and records its outcome.
// It refuses while a loop is alive for the project.
func (r *Registry) RunOnce(ctx context.Context, projectID string) (*CycleResult, error) {
	if r.IsActive(projectID) {
		return nil, fmt.Errorf("project %s: %w", projectID, models.ErrSyncInProgress)
	}

	if _, err := r.state.GetStatus(ctx, projectID); err != nil {
		return nil, err
	}

	return r.cycle(ctx, projectID)
}

func (r *Registry) loop(ctx context.Context, t *task) {
	logger := r.logger.WithField("project_id", t.projectID)

	defer func() {
		if p := recover(); p != nil {
			logger.WithFields(map[string]interface{}{
				"panic": fmt.Sprint(p),
				"stack": string(debug.Stack()),
			}).Error("Sync loop panicked")
		}

		r.mu.Lock()
		if r.tasks[t.projectID] == t {
			delete(r.tasks, t.projectID)
		}
		r.mu.Unlock()

		r.metrics.TaskStopped()
		t.cancel()
		close(t.done)
	}()

	for {
		status, err := r.state.GetStatus(ctx, t.projectID)
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Error("Unexpected error in sync loop")
			}
			return
		}

		switch status.Status {
		case models.StatusPaused:
			logger.Debug("Sync is paused")
			if !sleep(ctx, r.cfg.PausedPollInterval) {
				logger.Info("Sync task was cancelled")
				return
			}
			continue
		case models.StatusSyncing:
		default:
			logger.WithField("status", string(status.Status)).Info("Sync is not active")
			return
		}

		_, _ = r.cycle(ctx, t.projectID)

		if ctx.Err() == nil {
			logger.WithField("interval", r.cfg.Interval.String()).Debug("Next sync scheduled")
		}
		if !sleep(ctx, r.cfg.Interval) {
			logger.Info("Sync task was cancelled")
			return
		}
	}
}

// cycle runs the executor and appends one history entry. A cycle cut short
// by cancellation leaves no entry.
func (r *Registry) cycle(ctx context.Context, projectID string) (*CycleResult, error) {
	runID := uuid.NewString()
	ctx = events.WithRunID(events.WithProjectID(ctx, projectID), runID)
	logger := r.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"run_id":     runID,
	})

	logger.Info("Starting sync")
	startedAt := r.now()
	timer := metrics.NewTimer()

	result, err := r.runner.RunCycle(ctx, projectID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	entry := models.LogEntry{ProjectID: projectID, SyncTime: r.now()}
	if err != nil {
		entry.Status = models.OutcomeFailed
		entry.Message = fmt.Sprintf("Sync error for project %s: %v", projectID, err)
		logger.WithError(err).Error(entry.Message)
		r.metrics.CycleFinished(false, 0, 0, 0, projectID, timer.Duration())
	} else {
		entry.Status = models.OutcomeSuccess
		entry.Message = result.Message()
		entry.FormsSynced = result.FormsSynced
		entry.SubmissionsSynced = result.SubmissionsSynced
		r.metrics.CycleFinished(true, result.FormsSynced, result.SubmissionsSynced, len(result.FormErrors), projectID, timer.Duration())
	}

	if _, logErr := r.state.AppendLog(ctx, entry); logErr != nil {
		logger.WithError(logErr).Error("Failed to record sync log")
	}

	if err != nil {
		return nil, err
	}

	// The next cycle asks for submissions since this one began.
	if err := r.state.RecordSuccess(ctx, projectID, startedAt); err != nil {
		logger.WithError(err).Error("Failed to record sync time")
		return result, err
	}

	logger.Info("Completed sync")
	return result, nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
