package state

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

func newMockedStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := events.NewTestLogger(events.DebugLevel, "json", &bytes.Buffer{})
	store := newSQLStore(db, dialect, Options{
		Interval: time.Minute,
		Now:      func() time.Time { return now },
	}, logger)

	return store, mock
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}

	query := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestDriverFor(t *testing.T) {
	name, dsn, err := driverFor(DialectSQLite, "/tmp/state.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", name)
	assert.Contains(t, dsn, "?_journal=WAL")
	assert.Contains(t, dsn, "_foreign_keys=on")

	_, dsn, err = driverFor(DialectSQLite, "/tmp/state.db?cache=shared")
	require.NoError(t, err)
	assert.Contains(t, dsn, "cache=shared&_journal=WAL")

	name, dsn, err = driverFor(DialectPostgres, "postgres://localhost/formsync")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)
	assert.Equal(t, "postgres://localhost/formsync", dsn)

	_, _, err = driverFor(Dialect("oracle"), "x")
	assert.Error(t, err)
}

func TestPostgresSaveCredentialsCreates(t *testing.T) {
	store, mock := newMockedStore(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created_at FROM project_credentials WHERE project_id = \$1`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectExec(`INSERT INTO project_credentials`).
		WithArgs("7", "sealed", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO sync_status .* ON CONFLICT \(project_id\) DO NOTHING`).
		WithArgs("7", "idle", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec, created, err := store.SaveCredentials(context.Background(), "7", "sealed")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sealed", rec.Ciphertext)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveCredentialsUpdates(t *testing.T) {
	store, mock := newMockedStore(t, DialectPostgres)
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created_at FROM project_credentials`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))
	mock.ExpectExec(`UPDATE project_credentials\s+SET ciphertext = \$1, active = \$2, updated_at = \$3\s+WHERE project_id = \$4`).
		WithArgs("resealed", true, sqlmock.AnyArg(), "7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, created, err := store.SaveCredentials(context.Background(), "7", "resealed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, createdAt, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveCredentialsRollsBack(t *testing.T) {
	store, mock := newMockedStore(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created_at FROM project_credentials`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectExec(`INSERT INTO project_credentials`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO sync_status`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := store.SaveCredentials(context.Background(), "7", "sealed")

	var storageErr *models.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "create status", storageErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetStatusNotFound(t *testing.T) {
	store, mock := newMockedStore(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sync_status\s+SET status = \$1, next_sync_time = \$2, updated_at = \$3\s+WHERE project_id = \$4`).
		WithArgs("syncing", sqlmock.AnyArg(), sqlmock.AnyArg(), "404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.SetStatus(context.Background(), "404", models.StatusSyncing)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListLogs(t *testing.T) {
	store, mock := newMockedStore(t, DialectPostgres)
	t1 := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	t0 := t1.Add(-5 * time.Minute)

	rows := sqlmock.NewRows([]string{"id", "project_id", "sync_time", "status", "message", "forms_synced", "submissions_synced"}).
		AddRow(2, "7", t1, "failed", "Sync error for project 7: boom", 0, 0).
		AddRow(1, "7", t0, "success", "Successfully synced 2 forms and 5 submissions", 2, 5)

	mock.ExpectQuery(`FROM sync_logs\s+WHERE project_id = \$1\s+ORDER BY sync_time DESC, id DESC\s+LIMIT \$2`).
		WithArgs("7", 10).
		WillReturnRows(rows)

	logs, err := store.ListLogs(context.Background(), "7", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(2), logs[0].ID)
	assert.Equal(t, models.OutcomeFailed, logs[0].Status)
	assert.Equal(t, 5, logs[1].SubmissionsSynced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProjectNotFound(t *testing.T) {
	store, mock := newMockedStore(t, DialectSQLite)

	mock.ExpectExec(`DELETE FROM project_credentials WHERE project_id = \?`).
		WithArgs("404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteProject(context.Background(), "404")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
