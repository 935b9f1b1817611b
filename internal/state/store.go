package state

import (
	"context"
	"time"

	"github.com/TheMichaelB/formsync/internal/models"
)

// Store persists credentials, sync status and sync history per project.
// Missing rows are reported as models.ErrNotFound.
type Store interface {
	// SaveCredentials inserts or replaces the encrypted credentials.
	// A first save also creates an idle status record in the same
	// transaction; created reports which case happened.
	SaveCredentials(ctx context.Context, projectID, ciphertext string) (rec *models.CredentialRecord, created bool, err error)

	// GetCredentials loads the encrypted credentials.
	GetCredentials(ctx context.Context, projectID string) (*models.CredentialRecord, error)

	// DeleteProject removes credentials, status and history.
	DeleteProject(ctx context.Context, projectID string) error

	// GetStatus loads the status record.
	GetStatus(ctx context.Context, projectID string) (*models.SyncStatus, error)

	// SetStatus changes status. next_sync_time becomes now+interval when
	// syncing and is cleared otherwise.
	SetStatus(ctx context.Context, projectID string, status models.Status) (*models.SyncStatus, error)

	// RecordSuccess stores the completion time of a successful cycle and
	// schedules the next one.
	RecordSuccess(ctx context.Context, projectID string, at time.Time) error

	// AppendLog adds a history entry and returns it with its id.
	AppendLog(ctx context.Context, entry models.LogEntry) (*models.LogEntry, error)

	// ListLogs returns up to limit entries, most recent first.
	ListLogs(ctx context.Context, projectID string, limit int) ([]models.LogEntry, error)

	// ListStatuses returns every status record ordered by project.
	ListStatuses(ctx context.Context) ([]models.SyncStatus, error)

	// Close releases resources.
	Close() error
}

// Options tune derived timestamps.
type Options struct {
	// Interval is added to now to compute next_sync_time.
	Interval time.Duration

	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// DefaultLogLimit applies when ListLogs is called with a non-positive limit.
const DefaultLogLimit = 10
