package models

import "time"

// Status is the persisted lifecycle state of a project's sync.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusPaused  Status = "paused"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusSyncing, StatusPaused:
		return true
	}
	return false
}

// SyncStatus is the per-project status record.
// NextSyncTime is set exactly when Status is syncing.
type SyncStatus struct {
	ProjectID    string     `json:"project_id"`
	Status       Status     `json:"status"`
	LastSyncTime *time.Time `json:"last_sync_time"`
	NextSyncTime *time.Time `json:"next_sync_time"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StatusSnapshot joins a persisted status with the in-memory task registry.
type StatusSnapshot struct {
	SyncStatus
	IsActive bool `json:"is_active"`
}

// Outcome is the result recorded for one sync cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// LogEntry is one append-only row of sync history.
type LogEntry struct {
	ID                int64     `json:"id"`
	ProjectID         string    `json:"project_id"`
	SyncTime          time.Time `json:"sync_time"`
	Status            Outcome   `json:"status"`
	Message           string    `json:"message"`
	FormsSynced       int       `json:"forms_synced"`
	SubmissionsSynced int       `json:"submissions_synced"`
}
