package rpcpool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"solana-rpcpool-go/internal/logging"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"
)

const (
	healthMethod      = "getHealth"
	probeConcurrency  = 8
	healthyProbeReply = "ok"
)

// Prober checks whether a single endpoint is alive.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

var _ Prober = (*HealthProber)(nil)

// HealthProber 使用 getHealth 做轻量存活探测
type HealthProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHealthProber bounds every probe by connect+read.
func NewHealthProber(connect, read time.Duration) *HealthProber {
	return &HealthProber{
		client:  NewHTTPClient(connect, read),
		timeout: connect + read,
	}
}

func (hp *HealthProber) Probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, hp.timeout)
	defer cancel()

	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(hp.client))
	if err != nil {
		return fmt.Errorf("dial %s: %w", logging.MaskURL(url), err)
	}
	defer client.Close()

	var status string
	if err := client.CallContext(ctx, &status, healthMethod); err != nil {
		return fmt.Errorf("%s: %w", healthMethod, err)
	}
	if status != healthyProbeReply {
		return fmt.Errorf("%s returned %q", healthMethod, status)
	}
	return nil
}

// Warmup 启动时逐个探测端点；探测失败计一次 failure，成功不改分。
// 单个探测失败不会中断，返回探测成功的端点数。
func (p *Pool) Warmup(ctx context.Context, prober Prober) int {
	return p.probeAll(ctx, prober, false)
}

// Recheck re-probes every endpoint on demand; a successful probe counts as a
// success with its latency, a failed one as a failure.
func (p *Pool) Recheck(ctx context.Context, prober Prober) int {
	return p.probeAll(ctx, prober, true)
}

func (p *Pool) probeAll(ctx context.Context, prober Prober, scoreSuccess bool) int {
	p.mu.Lock()
	endpoints := append([]*Endpoint(nil), p.endpoints...)
	p.mu.Unlock()

	results := make([]bool, len(endpoints))
	var g errgroup.Group
	g.SetLimit(probeConcurrency)

	for i, ep := range endpoints {
		g.Go(func() error {
			start := time.Now()
			err := prober.Probe(ctx, ep.url)
			latency := time.Since(start)
			p.metrics.RecordProbe(ep.url, err == nil)

			if err != nil {
				p.RecordFailure(ep)
				p.logger.Warn("rpc_probe_failed",
					slog.String("url", logging.MaskURL(ep.url)),
					slog.String("error", err.Error()),
				)
				return nil
			}

			results[i] = true
			if scoreSuccess {
				p.RecordSuccess(ep, latency)
			}
			p.logger.Info("rpc_probe_ok",
				slog.String("url", logging.MaskURL(ep.url)),
				slog.Duration("latency", latency),
			)
			return nil
		})
	}
	_ = g.Wait()

	alive := 0
	for _, ok := range results {
		if ok {
			alive++
		}
	}
	p.logger.Info("rpc_pool_probed",
		slog.Int("alive", alive),
		slog.Int("total", len(endpoints)),
		slog.Bool("recheck", scoreSuccess),
	)
	return alive
}
