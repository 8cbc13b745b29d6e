package rpcpool

import (
	"time"
)

const (
	initialScore     = 1.0
	minScore         = 0.0
	maxScore         = 2.0
	healthyThreshold = 0.15

	successBonus       = 0.05
	latencyPenaltyUnit = 3000.0 // ms of latency per 1.0 score
	failurePenaltyStep = 0.2
)

// Endpoint 单个 RPC 提供方及其健康状态
//
// Fields other than url are guarded by the owning Pool's mutex.
type Endpoint struct {
	url                 string
	score               float64
	consecutiveFailures int
	lastFailureTime     time.Time

	successes uint64
	failures  uint64
}

func newEndpoint(url string) *Endpoint {
	return &Endpoint{
		url:   url,
		score: initialScore,
	}
}

// URL returns the endpoint base URL.
func (e *Endpoint) URL() string {
	return e.url
}

func (e *Endpoint) healthy() bool {
	return e.score > healthyThreshold
}

// recordSuccess 成功：快速响应加分，慢响应（≥ ~2850ms）仍可能扣分
func (e *Endpoint) recordSuccess(latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)
	e.score = clamp(e.score+successBonus-ms/latencyPenaltyUnit, minScore, maxScore)
	e.consecutiveFailures = 0
	e.successes++
}

// recordFailure 失败：惩罚随连续失败次数递增
func (e *Endpoint) recordFailure(at time.Time) {
	e.consecutiveFailures++
	e.score = clamp(e.score-failurePenaltyStep*float64(e.consecutiveFailures), minScore, maxScore)
	e.lastFailureTime = at
	e.failures++
}

func (e *Endpoint) status() EndpointStatus {
	st := EndpointStatus{
		URL:                 e.url,
		Score:               e.score,
		ConsecutiveFailures: e.consecutiveFailures,
		Healthy:             e.healthy(),
		Successes:           e.successes,
		Failures:            e.failures,
	}
	if !e.lastFailureTime.IsZero() {
		t := e.lastFailureTime
		st.LastFailureAt = &t
	}
	return st
}

// EndpointStatus is a point-in-time copy of an endpoint's health.
type EndpointStatus struct {
	URL                 string     `json:"url" db:"url"`
	Score               float64    `json:"score" db:"score"`
	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty" db:"last_failure_at"`
	Healthy             bool       `json:"healthy" db:"healthy"`
	Successes           uint64     `json:"successes" db:"successes"`
	Failures            uint64     `json:"failures" db:"failures"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
