package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-rpcpool-go/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotColumns = []string{
	"id", "url", "score", "consecutive_failures", "last_failure_at", "healthy",
	"successes", "failures", "avg_latency_ms", "recorded_at",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepositoryFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSaveSnapshots_SingleTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	snaps := []models.EndpointSnapshot{
		{URL: "https://a", Score: 1.0, Healthy: true, Successes: 3, RecordedAt: at},
		{URL: "https://b", Score: 0.0, ConsecutiveFailures: 4, Failures: 4, RecordedAt: at},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rpc_endpoint_snapshots").
		WithArgs("https://a", 1.0, 0, sqlmock.AnyArg(), true, int64(3), int64(0), 0.0, at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rpc_endpoint_snapshots").
		WithArgs("https://b", 0.0, 4, sqlmock.AnyArg(), false, int64(0), int64(4), 0.0, at).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveSnapshots(context.Background(), snaps))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshots_RollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rpc_endpoint_snapshots").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rpc_endpoint_snapshots").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SaveSnapshots(context.Background(), []models.EndpointSnapshot{{URL: "a"}, {URL: "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshots_EmptyIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.SaveSnapshots(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSnapshots(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(snapshotColumns).
		AddRow(2, "https://b", 0.4, 2, at, false, 0, 2, 120.5, at).
		AddRow(1, "https://a", 1.2, 0, nil, true, 9, 0, 120.5, at)
	mock.ExpectQuery("SELECT (.+) FROM rpc_endpoint_snapshots").
		WithArgs(defaultHistoryLimit).
		WillReturnRows(rows)

	snaps, err := repo.RecentSnapshots(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "https://b", snaps[0].URL)
	require.NotNil(t, snaps[0].LastFailureAt)
	assert.Nil(t, snaps[1].LastFailureAt)
	assert.Equal(t, int64(9), snaps[1].Successes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSnapshots_ClampsLimit(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM rpc_endpoint_snapshots").
		WithArgs(maxHistoryLimit).
		WillReturnRows(sqlmock.NewRows(snapshotColumns))

	snaps, err := repo.RecentSnapshots(context.Background(), 50_000)
	require.NoError(t, err)
	assert.NotNil(t, snaps)
	assert.Empty(t, snaps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneBefore(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM rpc_endpoint_snapshots WHERE recorded_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PruneBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rpc_endpoint_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_rpc_snapshots_recorded_at").WillReturnResult(sqlmock.NewResult(0, 0))
	// index failures are logged, not fatal
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_rpc_snapshots_url").WillReturnError(errors.New("permission denied"))

	require.NoError(t, InitSchema(context.Background(), repo.DB()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema_TableError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only"))

	err := InitSchema(context.Background(), repo.DB())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}
