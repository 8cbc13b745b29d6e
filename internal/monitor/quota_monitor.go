package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	AlertThreshold    = 0.80
	CriticalThreshold = 0.90

	// threshold logs are emitted at most once per this many calls
	logEvery = 100
)

// QuotaStatus 额度状态：0=Safe, 1=Warning, 2=Critical
type QuotaStatus int

const (
	QuotaSafe QuotaStatus = iota
	QuotaWarning
	QuotaCritical
)

func (s QuotaStatus) String() string {
	switch s {
	case QuotaWarning:
		return "warning"
	case QuotaCritical:
		return "critical"
	default:
		return "safe"
	}
}

// QuotaMonitor 统计当日（UTC）发往上游的调用次数，对照每日额度告警。
// dailyQuota <= 0 时只计数、不告警。
type QuotaMonitor struct {
	dailyCalls atomic.Uint64
	dailyQuota uint64

	mu        sync.Mutex
	resetTime time.Time
	now       func() time.Time

	usageGauge  prometheus.Gauge
	statusGauge prometheus.Gauge
	logger      *slog.Logger
}

func NewQuotaMonitor(dailyQuota int64, reg prometheus.Registerer) *QuotaMonitor {
	factory := promauto.With(reg)
	qm := &QuotaMonitor{
		dailyQuota: uint64(max(dailyQuota, 0)),
		now:        time.Now,
		usageGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rpcpool_quota_usage_percent",
			Help: "Percentage of the daily upstream call quota used (0-100)",
		}),
		statusGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rpcpool_quota_status",
			Help: "Upstream quota status: 0=Safe, 1=Warning, 2=Critical",
		}),
		logger: slog.Default(),
	}
	qm.resetTime = nextUTCMidnight(qm.now())
	return qm
}

// Inc 每次向上游发出一次尝试时调用
func (m *QuotaMonitor) Inc() {
	current := m.dailyCalls.Add(1)
	if m.dailyQuota == 0 {
		return
	}

	usage := float64(current) / float64(m.dailyQuota)
	status := statusFor(usage)
	m.usageGauge.Set(usage * 100)
	m.statusGauge.Set(float64(status))

	if current%logEvery != 0 {
		return
	}
	switch status {
	case QuotaCritical:
		m.logger.Error("rpc_quota_critical",
			slog.Float64("usage_percent", usage*100),
			slog.Uint64("calls", current),
			slog.Uint64("max_quota", m.dailyQuota))
	case QuotaWarning:
		m.logger.Warn("rpc_quota_warning",
			slog.Float64("usage_percent", usage*100),
			slog.Uint64("calls", current),
			slog.Uint64("remaining", m.dailyQuota-min(current, m.dailyQuota)))
	}
}

func (m *QuotaMonitor) Calls() uint64 {
	return m.dailyCalls.Load()
}

// UsagePercent returns 0-100 (or more once the quota is exceeded); 0 without a quota.
func (m *QuotaMonitor) UsagePercent() float64 {
	if m.dailyQuota == 0 {
		return 0
	}
	return float64(m.dailyCalls.Load()) / float64(m.dailyQuota) * 100
}

func (m *QuotaMonitor) Status() QuotaStatus {
	if m.dailyQuota == 0 {
		return QuotaSafe
	}
	return statusFor(float64(m.dailyCalls.Load()) / float64(m.dailyQuota))
}

// Run resets the counter at every UTC midnight until ctx is done.
func (m *QuotaMonitor) Run(ctx context.Context) {
	for {
		m.mu.Lock()
		wait := m.resetTime.Sub(m.now())
		m.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		m.ResetDaily()
	}
}

// ResetDaily zeroes the counter and schedules the next reset.
func (m *QuotaMonitor) ResetDaily() {
	m.dailyCalls.Store(0)
	m.usageGauge.Set(0)
	m.statusGauge.Set(0)

	m.mu.Lock()
	m.resetTime = nextUTCMidnight(m.now())
	next := m.resetTime
	m.mu.Unlock()

	m.logger.Info("rpc_quota_reset", slog.Time("next_reset", next))
}

func statusFor(usage float64) QuotaStatus {
	switch {
	case usage >= CriticalThreshold:
		return QuotaCritical
	case usage >= AlertThreshold:
		return QuotaWarning
	default:
		return QuotaSafe
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
