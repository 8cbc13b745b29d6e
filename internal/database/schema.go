package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// InitSchema 确保快照表与索引已就绪，可重复执行
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	slog.Info("database_schema_init")

	schema := `
	CREATE TABLE IF NOT EXISTS rpc_endpoint_snapshots (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_failure_at TIMESTAMP WITH TIME ZONE,
		healthy BOOLEAN NOT NULL,
		successes BIGINT NOT NULL DEFAULT 0,
		failures BIGINT NOT NULL DEFAULT 0,
		avg_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_rpc_snapshots_recorded_at ON rpc_endpoint_snapshots(recorded_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_rpc_snapshots_url ON rpc_endpoint_snapshots(url)",
	}
	for _, idx := range indices {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			slog.Warn("failed_to_create_index", "err", err)
		}
	}

	slog.Info("database_schema_ready")
	return nil
}
