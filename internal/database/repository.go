package database

import (
	"context"
	"fmt"
	"time"

	"solana-rpcpool-go/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Repository{db: db}, nil
}

// NewRepositoryFromDB wraps an existing handle (tests use sqlmock).
func NewRepositoryFromDB(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sqlx.DB {
	return r.db
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveSnapshots 在同一事务内写入一轮快照，全部成功或全部回滚
func (r *Repository) SaveSnapshots(ctx context.Context, snapshots []models.EndpointSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO rpc_endpoint_snapshots
		(url, score, consecutive_failures, last_failure_at, healthy, successes, failures, avg_latency_ms, recorded_at)
		VALUES
		(:url, :score, :consecutive_failures, :last_failure_at, :healthy, :successes, :failures, :avg_latency_ms, :recorded_at)
	`
	for i := range snapshots {
		if _, err := tx.NamedExecContext(ctx, query, &snapshots[i]); err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", snapshots[i].URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// RecentSnapshots 按记录时间倒序返回最近的快照
func (r *Repository) RecentSnapshots(ctx context.Context, limit int) ([]models.EndpointSnapshot, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	snapshots := []models.EndpointSnapshot{}
	err := r.db.SelectContext(ctx, &snapshots, `
		SELECT id, url, score, consecutive_failures, last_failure_at, healthy,
		       successes, failures, avg_latency_ms, recorded_at
		FROM rpc_endpoint_snapshots
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return snapshots, nil
}

// PruneBefore 删除早于 cutoff 的快照，返回删除行数
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM rpc_endpoint_snapshots WHERE recorded_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
