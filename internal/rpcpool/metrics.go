package rpcpool

import (
	"sync"
	"time"

	"solana-rpcpool-go/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the RPC pool
type Metrics struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestsFailed  *prometheus.CounterVec
	RPCLatency         *prometheus.HistogramVec
	RPCExhausted       *prometheus.CounterVec
	RPCBackoffSeconds  prometheus.Counter
	EndpointScore      *prometheus.GaugeVec
	HealthyEndpoints   prometheus.Gauge
	WarmupProbeResults *prometheus.CounterVec
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the singleton Metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// NewMetrics registers the pool metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcpool_requests_total",
			Help: "Total number of RPC attempts by endpoint and method",
		}, []string{"endpoint", "method"}),
		RPCRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcpool_requests_failed_total",
			Help: "Total number of failed RPC attempts by endpoint, method and error kind",
		}, []string{"endpoint", "method", "kind"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpcpool_request_duration_seconds",
			Help:    "RPC attempt latency by endpoint and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		RPCExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcpool_retries_exhausted_total",
			Help: "Total number of requests that failed after the whole retry budget",
		}, []string{"method"}),
		RPCBackoffSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "rpcpool_backoff_seconds_total",
			Help: "Total time spent sleeping between attempts",
		}),
		EndpointScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpcpool_endpoint_score",
			Help: "Current health score of each endpoint (0.0 - 2.0)",
		}, []string{"endpoint"}),
		HealthyEndpoints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rpcpool_healthy_endpoints",
			Help: "Number of endpoints with score above the healthy threshold",
		}),
		WarmupProbeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcpool_probe_results_total",
			Help: "Liveness probe outcomes by endpoint",
		}, []string{"endpoint", "result"}),
	}
}

// RecordRPCRequest records one attempt; kind is empty on success.
func (m *Metrics) RecordRPCRequest(endpoint, method string, duration time.Duration, kind ErrorKind) {
	ep := logging.MaskURL(endpoint)
	m.RPCRequestsTotal.WithLabelValues(ep, method).Inc()
	m.RPCLatency.WithLabelValues(ep, method).Observe(duration.Seconds())

	if kind != "" {
		m.RPCRequestsFailed.WithLabelValues(ep, method, string(kind)).Inc()
	}
}

func (m *Metrics) RecordExhausted(method string) {
	m.RPCExhausted.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordBackoff(d time.Duration) {
	m.RPCBackoffSeconds.Add(d.Seconds())
}

func (m *Metrics) UpdateEndpointScore(endpoint string, score float64) {
	m.EndpointScore.WithLabelValues(logging.MaskURL(endpoint)).Set(score)
}

func (m *Metrics) UpdateHealthyEndpoints(count int) {
	m.HealthyEndpoints.Set(float64(count))
}

func (m *Metrics) RecordProbe(endpoint string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.WarmupProbeResults.WithLabelValues(logging.MaskURL(endpoint), result).Inc()
}
