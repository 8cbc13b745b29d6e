package models

import "time"

// EndpointSnapshot 单个端点在某一时刻的健康快照（rpc_endpoint_snapshots 表的一行）
type EndpointSnapshot struct {
	ID                  int64      `db:"id" json:"id"`
	URL                 string     `db:"url" json:"url"`
	Score               float64    `db:"score" json:"score"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	LastFailureAt       *time.Time `db:"last_failure_at" json:"last_failure_at,omitempty"`
	Healthy             bool       `db:"healthy" json:"healthy"`
	Successes           int64      `db:"successes" json:"successes"`
	Failures            int64      `db:"failures" json:"failures"`
	AvgLatencyMs        float64    `db:"avg_latency_ms" json:"avg_latency_ms"`
	RecordedAt          time.Time  `db:"recorded_at" json:"recorded_at"`
}
