package limiter

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter 出站 RPC 全局限速器（令牌桶）
type RateLimiter struct {
	limiter *rate.Limiter

	mu     sync.RWMutex
	maxRPS float64 // 0 表示不限速
}

// NewRateLimiter 创建限速器；rps <= 0 时不限速
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		slog.Info("rpc_rate_limiter_configured", "mode", "unlimited")
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	slog.Info("rpc_rate_limiter_configured", "rps", rps, "burst", burst)

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxRPS:  rps,
	}
}

// Wait 阻塞直到获取令牌（或上下文取消）
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// MaxRPS 返回当前配置的最大 RPS（0 = 不限速）
func (rl *RateLimiter) MaxRPS() float64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.maxRPS
}

// SetRate 动态调整限速；rps <= 0 时取消限速
func (rl *RateLimiter) SetRate(rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rps <= 0 {
		rl.limiter.SetLimit(rate.Inf)
		rl.maxRPS = 0
		slog.Info("rpc_rate_limit_updated", "mode", "unlimited")
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	rl.limiter.SetBurst(burst)
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.maxRPS = rps
	slog.Info("rpc_rate_limit_updated", "rps", rps, "burst", burst)
}
