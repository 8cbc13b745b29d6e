package rpcpool

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"solana-rpcpool-go/internal/logging"
)

// ErrNoEndpoints is returned when a pool would be built from an empty URL list.
var ErrNoEndpoints = errors.New("no RPC endpoints configured")

// PoolOptions 端点池构造参数
type PoolOptions struct {
	LatencyWindow int
	Logger        *slog.Logger
	Metrics       *Metrics
}

// Pool 共享的端点池：评分、轮询游标、延迟历史都由同一把锁保护，
// HTTP I/O 在锁外执行。
type Pool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	cursor    int
	latency   *latencyWindow

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewPool 创建端点池，每个端点初始 score=1.0
func NewPool(urls []string, opts PoolOptions) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}

	p := &Pool{
		endpoints: make([]*Endpoint, 0, len(urls)),
		latency:   newLatencyWindow(opts.LatencyWindow),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = GetMetrics()
	}

	for _, u := range urls {
		ep := newEndpoint(u)
		p.endpoints = append(p.endpoints, ep)
		p.metrics.UpdateEndpointScore(u, ep.score)
	}
	p.metrics.UpdateHealthyEndpoints(len(p.endpoints))

	p.logger.Info("rpc_pool_initialized", slog.Int("endpoints", len(p.endpoints)))
	return p, nil
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// NextEndpoint 从游标开始环形扫描，返回第一个 score > 0.15 的端点并推进游标；
// 全部降级时退回到全局最高分端点（可用性优先）。
func (p *Pool) NextEndpoint() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		ep := p.endpoints[idx]
		if ep.healthy() {
			p.cursor = (idx + 1) % n
			return ep
		}
	}

	best := p.endpoints[0]
	for _, ep := range p.endpoints[1:] {
		if ep.score > best.score {
			best = ep
		}
	}
	p.logger.Warn("rpc_pool_all_degraded",
		slog.String("fallback", logging.MaskURL(best.url)),
		slog.Float64("score", best.score),
	)
	return best
}

// RecordSuccess applies the success scoring rule to ep.
func (p *Pool) RecordSuccess(ep *Endpoint, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordSuccessLocked(ep, latency)
}

// RecordFailure applies the failure scoring rule to ep.
func (p *Pool) RecordFailure(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasHealthy := ep.healthy()
	ep.recordFailure(p.now())
	p.metrics.UpdateEndpointScore(ep.url, ep.score)

	if wasHealthy && !ep.healthy() {
		p.logger.Warn("rpc_endpoint_degraded",
			slog.String("url", logging.MaskURL(ep.url)),
			slog.Float64("score", ep.score),
			slog.Int("consecutive_failures", ep.consecutiveFailures),
		)
		p.metrics.UpdateHealthyEndpoints(p.healthyCountLocked())
	}
}

// recordCallSuccess scores ep and appends the latency to the rolling history
// in one critical section, returning the new rolling average.
func (p *Pool) recordCallSuccess(ep *Endpoint, latency time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordSuccessLocked(ep, latency)
	p.latency.add(latency)
	return p.latency.average()
}

func (p *Pool) recordSuccessLocked(ep *Endpoint, latency time.Duration) {
	wasHealthy := ep.healthy()
	ep.recordSuccess(latency)
	p.metrics.UpdateEndpointScore(ep.url, ep.score)

	if !wasHealthy && ep.healthy() {
		p.logger.Info("rpc_endpoint_recovered",
			slog.String("url", logging.MaskURL(ep.url)),
			slog.Float64("score", ep.score),
		)
		p.metrics.UpdateHealthyEndpoints(p.healthyCountLocked())
	}
}

// AverageLatency returns the rolling average of successful call latencies.
func (p *Pool) AverageLatency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency.average()
}

// HealthyCount 返回 score > 0.15 的端点数量
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthyCountLocked()
}

func (p *Pool) healthyCountLocked() int {
	count := 0
	for _, ep := range p.endpoints {
		if ep.healthy() {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of every endpoint's health, in pool order.
func (p *Pool) Snapshot() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EndpointStatus, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = ep.status()
	}
	return out
}

// Status is the pool-wide view served to operators.
type Status struct {
	Endpoints        []EndpointStatus `json:"endpoints"`
	HealthyCount     int              `json:"healthy_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	LatencySamples   int              `json:"latency_samples"`
	HealthyThreshold float64          `json:"healthy_threshold"`
}

// Status 汇总端点状态与滚动平均延迟
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Endpoints:        make([]EndpointStatus, len(p.endpoints)),
		HealthyCount:     p.healthyCountLocked(),
		AvgLatencyMs:     durationMs(p.latency.average()),
		LatencySamples:   p.latency.len(),
		HealthyThreshold: healthyThreshold,
	}
	for i, ep := range p.endpoints {
		st.Endpoints[i] = ep.status()
	}
	return st
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
