package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
	"github.com/TheMichaelB/formsync/internal/state/migrations"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
	logger  *events.Logger
}

// NewSQLStore opens the database, applies migrations and returns the store.
func NewSQLStore(ctx context.Context, dialect Dialect, dsn string, opts Options, logger *events.Logger) (*SQLStore, error) {
	driverName, dsn, err := driverFor(dialect, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := newSQLStore(db, dialect, opts, logger)

	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite allows a single writer; serialize through one connection.
		db.SetMaxOpenConns(1)
	}

	return store, nil
}

func newSQLStore(db *sql.DB, dialect Dialect, opts Options, logger *events.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		opts:    opts.withDefaults(),
		logger:  logger.WithFields(map[string]interface{}{"component": "sql_state_store", "dialect": string(dialect)}),
	}
}

func driverFor(dialect Dialect, dsn string) (string, string, error) {
	switch dialect {
	case DialectSQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return "sqlite3", dsn + sep + "_journal=WAL&_timeout=5000&_foreign_keys=on", nil
	case DialectPostgres:
		return "pgx", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations.FS, string(s.dialect))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", s.dialect, err)
	}

	gooseDialect := goose.DialectSQLite3
	if s.dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}

	if len(results) > 0 {
		s.logger.WithField("applied", len(results)).Info("Applied schema migrations")
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQLStore) now() time.Time {
	return s.opts.Now().UTC()
}

// SaveCredentials inserts or replaces encrypted credentials.
func (s *SQLStore) SaveCredentials(ctx context.Context, projectID, ciphertext string) (*models.CredentialRecord, bool, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec := &models.CredentialRecord{
		ProjectID:  projectID,
		Ciphertext: ciphertext,
		Active:     true,
		UpdatedAt:  now,
	}

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, s.rebind(`
        SELECT created_at FROM project_credentials WHERE project_id = ?
    `), projectID).Scan(&createdAt)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		rec.CreatedAt = now

		if _, err := tx.ExecContext(ctx, s.rebind(`
            INSERT INTO project_credentials (project_id, ciphertext, active, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)
        `), projectID, ciphertext, true, now, now); err != nil {
			return nil, false, storageErr("insert credentials", err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`
            INSERT INTO sync_status (project_id, status, updated_at)
            VALUES (?, ?, ?)
            ON CONFLICT (project_id) DO NOTHING
        `), projectID, string(models.StatusIdle), now); err != nil {
			return nil, false, storageErr("create status", err)
		}

	case err != nil:
		return nil, false, storageErr("query credentials", err)

	default:
		rec.CreatedAt = createdAt.UTC()

		if _, err := tx.ExecContext(ctx, s.rebind(`
            UPDATE project_credentials
            SET ciphertext = ?, active = ?, updated_at = ?
            WHERE project_id = ?
        `), ciphertext, true, now, projectID); err != nil {
			return nil, false, storageErr("update credentials", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storageErr("commit credentials", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"created":    created,
	}).Debug("Saved credentials")

	return rec, created, nil
}

// GetCredentials loads encrypted credentials.
func (s *SQLStore) GetCredentials(ctx context.Context, projectID string) (*models.CredentialRecord, error) {
	var rec models.CredentialRecord
	err := s.db.QueryRowContext(ctx, s.rebind(`
        SELECT project_id, ciphertext, active, created_at, updated_at
        FROM project_credentials
        WHERE project_id = ?
    `), projectID).Scan(&rec.ProjectID, &rec.Ciphertext, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credentials for project %s: %w", projectID, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("query credentials", err)
	}

	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// DeleteProject removes a project; status and history cascade.
func (s *SQLStore) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
        DELETE FROM project_credentials WHERE project_id = ?
    `), projectID)
	if err != nil {
		return storageErr("delete project", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}

	s.logger.WithField("project_id", projectID).Info("Deleted project")
	return nil
}

const statusColumns = `project_id, status, last_sync_time, next_sync_time, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatus(row rowScanner) (*models.SyncStatus, error) {
	var (
		st         models.SyncStatus
		status     string
		last, next sql.NullTime
	)

	if err := row.Scan(&st.ProjectID, &status, &last, &next, &st.UpdatedAt); err != nil {
		return nil, err
	}

	st.Status = models.Status(status)
	st.UpdatedAt = st.UpdatedAt.UTC()
	if last.Valid {
		t := last.Time.UTC()
		st.LastSyncTime = &t
	}
	if next.Valid {
		t := next.Time.UTC()
		st.NextSyncTime = &t
	}
	return &st, nil
}

// GetStatus loads the status record.
func (s *SQLStore) GetStatus(ctx context.Context, projectID string) (*models.SyncStatus, error) {
	st, err := scanStatus(s.db.QueryRowContext(ctx, s.rebind(`
        SELECT `+statusColumns+` FROM sync_status WHERE project_id = ?
    `), projectID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("query status", err)
	}
	return st, nil
}

// SetStatus updates status and derives next_sync_time.
func (s *SQLStore) SetStatus(ctx context.Context, projectID string, status models.Status) (*models.SyncStatus, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}

	now := s.now()
	next := sql.NullTime{}
	if status == models.StatusSyncing {
		next = sql.NullTime{Time: now.Add(s.opts.Interval), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`
        UPDATE sync_status
        SET status = ?, next_sync_time = ?, updated_at = ?
        WHERE project_id = ?
    `), string(status), next, now, projectID)
	if err != nil {
		return nil, storageErr("update status", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}

	st, err := scanStatus(tx.QueryRowContext(ctx, s.rebind(`
        SELECT `+statusColumns+` FROM sync_status WHERE project_id = ?
    `), projectID))
	if err != nil {
		return nil, storageErr("reload status", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit status", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"status":     string(status),
	}).Debug("Status updated")

	return st, nil
}

// RecordSuccess stores last_sync_time. next_sync_time is only scheduled
// while the project is syncing.
func (s *SQLStore) RecordSuccess(ctx context.Context, projectID string, at time.Time) error {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, s.rebind(`
        SELECT status FROM sync_status WHERE project_id = ?
    `), projectID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("status for project %s: %w", projectID, models.ErrNotFound)
	}
	if err != nil {
		return storageErr("query status", err)
	}

	next := sql.NullTime{}
	if models.Status(status) == models.StatusSyncing {
		next = sql.NullTime{Time: at.Add(s.opts.Interval), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
        UPDATE sync_status
        SET last_sync_time = ?, next_sync_time = ?, updated_at = ?
        WHERE project_id = ?
    `), at, next, s.now(), projectID); err != nil {
		return storageErr("record success", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit success", err)
	}
	return nil
}

// AppendLog adds a history entry.
func (s *SQLStore) AppendLog(ctx context.Context, entry models.LogEntry) (*models.LogEntry, error) {
	if entry.SyncTime.IsZero() {
		entry.SyncTime = s.now()
	}
	entry.SyncTime = entry.SyncTime.UTC()

	err := s.db.QueryRowContext(ctx, s.rebind(`
        INSERT INTO sync_logs (project_id, sync_time, status, message, forms_synced, submissions_synced)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id
    `), entry.ProjectID, entry.SyncTime, string(entry.Status), entry.Message,
		entry.FormsSynced, entry.SubmissionsSynced).Scan(&entry.ID)
	if err != nil {
		return nil, storageErr("append log", err)
	}

	return &entry, nil
}

// ListLogs returns history entries, most recent first.
func (s *SQLStore) ListLogs(ctx context.Context, projectID string, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
        SELECT id, project_id, sync_time, status, message, forms_synced, submissions_synced
        FROM sync_logs
        WHERE project_id = ?
        ORDER BY sync_time DESC, id DESC
        LIMIT ?
    `), projectID, limit)
	if err != nil {
		return nil, storageErr("query logs", err)
	}
	defer rows.Close()

	logs := make([]models.LogEntry, 0, limit)
	for rows.Next() {
		var (
			entry  models.LogEntry
			status string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &entry.SyncTime, &status, &entry.Message,
			&entry.FormsSynced, &entry.SubmissionsSynced); err != nil {
			return nil, storageErr("scan log row", err)
		}
		entry.Status = models.Outcome(status)
		entry.SyncTime = entry.SyncTime.UTC()
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate logs", err)
	}
	return logs, nil
}

// ListStatuses returns every status record.
func (s *SQLStore) ListStatuses(ctx context.Context) ([]models.SyncStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM sync_status ORDER BY project_id`)
	if err != nil {
		return nil, storageErr("query statuses", err)
	}
	defer rows.Close()

	var statuses []models.SyncStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, storageErr("scan status row", err)
		}
		statuses = append(statuses, *st)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate statuses", err)
	}
	return statuses, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func storageErr(op string, err error) error {
	return &models.StorageError{Op: op, Err: err}
}
