package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TheMichaelB/formsync/internal/models"
)

// MockStore is an in-memory Store for tests. Errors can be injected per
// operation name ("SaveCredentials", "AppendLog", ...).
type MockStore struct {
	mu       sync.RWMutex
	opts     Options
	creds    map[string]models.CredentialRecord
	statuses map[string]models.SyncStatus
	logs     []models.LogEntry
	nextID   int64
	errors   map[string]error
	calls    map[string]int
}

// NewMockStore creates a mock state store.
func NewMockStore(opts Options) *MockStore {
	return &MockStore{
		opts:     opts.withDefaults(),
		creds:    make(map[string]models.CredentialRecord),
		statuses: make(map[string]models.SyncStatus),
		errors:   make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (m *MockStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, op)
		return
	}
	m.errors[op] = err
}

// Calls returns how often op was invoked.
func (m *MockStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// enter records the call and returns any injected error. Caller holds m.mu.
func (m *MockStore) enter(op string) error {
	m.calls[op]++
	if err, ok := m.errors[op]; ok {
		return &models.StorageError{Op: op, Err: err}
	}
	return nil
}

func (m *MockStore) now() time.Time {
	return m.opts.Now().UTC()
}

// SaveCredentials inserts or replaces credentials.
func (m *MockStore) SaveCredentials(ctx context.Context, projectID, ciphertext string) (*models.CredentialRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveCredentials"); err != nil {
		return nil, false, err
	}

	now := m.now()
	rec, exists := m.creds[projectID]
	if !exists {
		rec = models.CredentialRecord{ProjectID: projectID, CreatedAt: now}
		if _, ok := m.statuses[projectID]; !ok {
			m.statuses[projectID] = models.SyncStatus{ProjectID: projectID, Status: models.StatusIdle, UpdatedAt: now}
		}
	}
	rec.Ciphertext = ciphertext
	rec.Active = true
	rec.UpdatedAt = now
	m.creds[projectID] = rec

	out := rec
	return &out, !exists, nil
}

// GetCredentials loads credentials.
func (m *MockStore) GetCredentials(ctx context.Context, projectID string) (*models.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCredentials"); err != nil {
		return nil, err
	}

	rec, ok := m.creds[projectID]
	if !ok {
		return nil, fmt.Errorf("credentials for project %s: %w", projectID, models.ErrNotFound)
	}
	return &rec, nil
}

// DeleteProject removes a project and everything that hangs off it.
func (m *MockStore) DeleteProject(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteProject"); err != nil {
		return err
	}

	if _, ok := m.creds[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}
	delete(m.creds, projectID)
	delete(m.statuses, projectID)

	kept := m.logs[:0]
	for _, l := range m.logs {
		if l.ProjectID != projectID {
			kept = append(kept, l)
		}
	}
	m.logs = kept
	return nil
}

// GetStatus loads a status.
func (m *MockStore) GetStatus(ctx context.Context, projectID string) (*models.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetStatus"); err != nil {
		return nil, err
	}

	st, ok := m.statuses[projectID]
	if !ok {
		return nil, fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}
	return &st, nil
}

// SetStatus changes status and derives next_sync_time.
func (m *MockStore) SetStatus(ctx context.Context, projectID string, status models.Status) (*models.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetStatus"); err != nil {
		return nil, err
	}

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}

	st, ok := m.statuses[projectID]
	if !ok {
		return nil, fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}

	now := m.now()
	st.Status = status
	st.UpdatedAt = now
	st.NextSyncTime = nil
	if status == models.StatusSyncing {
		next := now.Add(m.opts.Interval)
		st.NextSyncTime = &next
	}
	m.statuses[projectID] = st

	return &st, nil
}

// RecordSuccess stores last_sync_time.
func (m *MockStore) RecordSuccess(ctx context.Context, projectID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RecordSuccess"); err != nil {
		return err
	}

	st, ok := m.statuses[projectID]
	if !ok {
		return fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}

	at = at.UTC()
	st.LastSyncTime = &at
	st.NextSyncTime = nil
	if st.Status == models.StatusSyncing {
		next := at.Add(m.opts.Interval)
		st.NextSyncTime = &next
	}
	st.UpdatedAt = m.now()
	m.statuses[projectID] = st
	return nil
}

// AppendLog adds a history entry.
func (m *MockStore) AppendLog(ctx context.Context, entry models.LogEntry) (*models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AppendLog"); err != nil {
		return nil, err
	}

	if _, ok := m.creds[entry.ProjectID]; !ok {
		return nil, &models.StorageError{Op: "append log", Err: fmt.Errorf("project %s: %w", entry.ProjectID, models.ErrNotFound)}
	}

	m.nextID++
	entry.ID = m.nextID
	if entry.SyncTime.IsZero() {
		entry.SyncTime = m.now()
	}
	entry.SyncTime = entry.SyncTime.UTC()
	m.logs = append(m.logs, entry)
	return &entry, nil
}

// ListLogs returns entries most recent first.
func (m *MockStore) ListLogs(ctx context.Context, projectID string, limit int) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListLogs"); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLogLimit
	}

	var out []models.LogEntry
	for _, l := range m.logs {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SyncTime.Equal(out[j].SyncTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].SyncTime.After(out[j].SyncTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStatuses returns all statuses ordered by project.
func (m *MockStore) ListStatuses(ctx context.Context) ([]models.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListStatuses"); err != nil {
		return nil, err
	}

	out := make([]models.SyncStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}
