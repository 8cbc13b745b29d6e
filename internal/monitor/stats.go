package monitor

import (
	"sync"
	"time"
)

const rateWindowSeconds = 5

// RateMeter 5 秒滑动窗口，按秒分桶统计上游请求速率
type RateMeter struct {
	buckets    [rateWindowSeconds]int
	currentPos int
	lastTick   time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewRateMeter() *RateMeter {
	m := &RateMeter{now: time.Now}
	m.lastTick = m.now()
	return m
}

// Record adds count events to the current second.
func (m *RateMeter) Record(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()
	m.buckets[m.currentPos] += count
}

// Rate returns the average events per second over the window.
func (m *RateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked()

	sum := 0
	for _, b := range m.buckets {
		sum += b
	}
	return float64(sum) / rateWindowSeconds
}

func (m *RateMeter) advanceLocked() {
	now := m.now()
	elapsed := int(now.Sub(m.lastTick) / time.Second)
	if elapsed < 1 {
		return
	}
	if elapsed >= rateWindowSeconds {
		m.buckets = [rateWindowSeconds]int{}
		m.currentPos = 0
	} else {
		for i := 0; i < elapsed; i++ {
			m.currentPos = (m.currentPos + 1) % rateWindowSeconds
			m.buckets[m.currentPos] = 0
		}
	}
	m.lastTick = m.lastTick.Add(time.Duration(elapsed) * time.Second)
}

// Usage 汇总上游调用量：当日额度与实时速率
type Usage struct {
	Quota *QuotaMonitor
	Rate  *RateMeter
}

// UsageSnapshot is the JSON view of Usage.
type UsageSnapshot struct {
	CallsToday   uint64  `json:"calls_today"`
	DailyQuota   uint64  `json:"daily_quota"`
	UsagePercent float64 `json:"usage_percent"`
	QuotaStatus  string  `json:"quota_status"`
	RequestsPerS float64 `json:"requests_per_second"`
}

func NewUsage(quota *QuotaMonitor) *Usage {
	return &Usage{Quota: quota, Rate: NewRateMeter()}
}

// ObserveAttempt counts one upstream HTTP attempt.
func (u *Usage) ObserveAttempt() {
	u.Quota.Inc()
	u.Rate.Record(1)
}

func (u *Usage) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		CallsToday:   u.Quota.Calls(),
		DailyQuota:   u.Quota.dailyQuota,
		UsagePercent: u.Quota.UsagePercent(),
		QuotaStatus:  u.Quota.Status().String(),
		RequestsPerS: u.Rate.Rate(),
	}
}
