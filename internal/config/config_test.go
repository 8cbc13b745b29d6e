package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SOLANA_RPC_URL", "SOLANA_RPC_URLS", "SOLANA_RPC_DISABLE_FALLBACKS",
		"RPC_READ_TIMEOUT_SECONDS", "RPC_CONNECT_TIMEOUT_SECONDS", "RPC_BASE_BACKOFF_SECONDS",
		"RPC_JITTER_SECONDS", "RPC_RATE_LIMIT_COOLDOWN_SECONDS", "RPC_RETRIES", "RPC_MAX_RPS",
		"RPC_LATENCY_WINDOW", "RPC_DAILY_QUOTA", "SNAPSHOT_INTERVAL_SECONDS", "SNAPSHOT_RETENTION_HOURS", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, defaultPrimaryRPC, cfg.PrimaryRPCURL)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 4*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 80*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 40*time.Millisecond, cfg.Jitter)
	assert.Equal(t, 350*time.Millisecond, cfg.RateLimitCooldown)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 200, cfg.LatencyWindow)
	assert.False(t, cfg.DisableFallbacks)
	assert.Zero(t, cfg.MaxRPS)
	assert.Zero(t, cfg.DailyQuota)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotRetention)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "https://primary.example")
	t.Setenv("SOLANA_RPC_URLS", " https://a.example , ,https://b.example")
	t.Setenv("RPC_RATE_LIMIT_COOLDOWN_SECONDS", "1.5")
	t.Setenv("RPC_RETRIES", "5")
	t.Setenv("RPC_DAILY_QUOTA", "100000")
	t.Setenv("SOLANA_RPC_DISABLE_FALLBACKS", "true")

	cfg := Load()
	assert.Equal(t, "https://primary.example", cfg.PrimaryRPCURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.ExtraURLList())
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimitCooldown)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, int64(100000), cfg.DailyQuota)
	assert.True(t, cfg.DisableFallbacks)
}

func TestLoad_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("RPC_RETRIES", "lots")
	t.Setenv("RPC_JITTER_SECONDS", "-1")
	t.Setenv("SOLANA_RPC_DISABLE_FALLBACKS", "maybe")

	cfg := Load()
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 40*time.Millisecond, cfg.Jitter)
	assert.False(t, cfg.DisableFallbacks)
}
