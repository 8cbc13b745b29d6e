package database

import (
	"context"
	"log/slog"
	"time"

	"solana-rpcpool-go/internal/logging"
	"solana-rpcpool-go/internal/models"
	"solana-rpcpool-go/internal/rpcpool"
)

// StatusSource is satisfied by *rpcpool.Pool.
type StatusSource interface {
	Status() rpcpool.Status
}

type SnapshotStore interface {
	SaveSnapshots(ctx context.Context, snapshots []models.EndpointSnapshot) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ StatusSource  = (*rpcpool.Pool)(nil)
	_ SnapshotStore = (*Repository)(nil)
)

// Recorder 周期性地把端点健康状态落库
type Recorder struct {
	source    StatusSource
	store     SnapshotStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder builds a recorder; retention <= 0 disables pruning.
func NewRecorder(source StatusSource, store SnapshotStore, interval, retention time.Duration) *Recorder {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Recorder{
		source:    source,
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// Run records one snapshot immediately and then on every tick until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("snapshot_recorder_started", slog.Duration("interval", r.interval))
	for {
		if err := r.RecordOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("snapshot_record_failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("snapshot_recorder_stopped")
			return
		case <-ticker.C:
		}
	}
}

// RecordOnce writes one row per endpoint and prunes expired rows.
func (r *Recorder) RecordOnce(ctx context.Context) error {
	status := r.source.Status()
	at := r.now().UTC()

	snapshots := make([]models.EndpointSnapshot, 0, len(status.Endpoints))
	for _, ep := range status.Endpoints {
		snapshots = append(snapshots, models.EndpointSnapshot{
			// 入库前脱敏，URL 中可能带 API key
			URL:                 logging.MaskURL(ep.URL),
			Score:               ep.Score,
			ConsecutiveFailures: ep.ConsecutiveFailures,
			LastFailureAt:       ep.LastFailureAt,
			Healthy:             ep.Healthy,
			Successes:           int64(ep.Successes),
			Failures:            int64(ep.Failures),
			AvgLatencyMs:        status.AvgLatencyMs,
			RecordedAt:          at,
		})
	}
	if err := r.store.SaveSnapshots(ctx, snapshots); err != nil {
		return err
	}

	if r.retention > 0 {
		n, err := r.store.PruneBefore(ctx, at.Add(-r.retention))
		if err != nil {
			return err
		}
		if n > 0 {
			r.logger.Debug("snapshots_pruned", slog.Int64("rows", n))
		}
	}
	return nil
}
