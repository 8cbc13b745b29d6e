package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"solana-rpcpool-go/internal/rpcpool"
)

const (
	EventPoolStatus = "pool_status"
	EventPoolProbe  = "pool_probe"

	// unchanged status is still re-sent every heartbeatTicks ticks
	heartbeatTicks = 10
)

// StatusSource is satisfied by *rpcpool.Pool.
type StatusSource interface {
	Status() rpcpool.Status
}

var _ StatusSource = (*rpcpool.Pool)(nil)

// Broadcaster is satisfied by *Hub.
type Broadcaster interface {
	Broadcast(event any)
}

// StatusPublisher 定时采样池状态并推送给 Hub；状态未变化时降频为心跳
type StatusPublisher struct {
	source   StatusSource
	out      Broadcaster
	interval time.Duration
	logger   *slog.Logger

	last  []byte
	quiet int
}

func NewStatusPublisher(source StatusSource, out Broadcaster, interval time.Duration) *StatusPublisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatusPublisher{source: source, out: out, interval: interval, logger: slog.Default()}
}

// StatusEvent wraps the current pool status for the wire.
func StatusEvent(source StatusSource) WSEvent {
	return WSEvent{Type: EventPoolStatus, Data: source.Status()}
}

func (p *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("status_publisher_started", slog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("status_publisher_stopped")
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick publishes the status if it changed or the heartbeat is due. It reports whether it published.
func (p *StatusPublisher) Tick() bool {
	event := StatusEvent(p.source)
	encoded, err := json.Marshal(event.Data)
	if err != nil {
		p.logger.Error("status_marshal_failed", slog.String("error", err.Error()))
		return false
	}

	p.quiet++
	if string(encoded) == string(p.last) && p.quiet < heartbeatTicks {
		return false
	}
	p.last = encoded
	p.quiet = 0
	p.out.Broadcast(event)
	return true
}

// PublishProbe announces the outcome of a warmup or recheck round.
func PublishProbe(out Broadcaster, healthy, total int) {
	out.Broadcast(WSEvent{Type: EventPoolProbe, Data: map[string]int{"healthy": healthy, "total": total}})
}
