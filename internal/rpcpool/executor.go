package rpcpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"solana-rpcpool-go/internal/limiter"
	"solana-rpcpool-go/internal/logging"
)

const (
	DefaultRetries           = 3
	DefaultConnectTimeout    = 4 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultBaseBackoff       = 80 * time.Millisecond
	DefaultJitter            = 40 * time.Millisecond
	DefaultRateLimitCooldown = 350 * time.Millisecond

	maxResponseBytes = 32 << 20
)

// ExecutorOptions 请求执行器参数。Retries 与超时的零值取默认值；
// 退避、抖动、限流冷却的零值表示不等待（见 DefaultExecutorOptions）。
type ExecutorOptions struct {
	Retries           int
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	BaseBackoff       time.Duration
	Jitter            time.Duration
	RateLimitCooldown time.Duration

	HTTPClient *http.Client
	Limiter    *limiter.RateLimiter
	Observer   AttemptObserver
	Logger     *slog.Logger
	Metrics    *Metrics
}

// AttemptObserver is told about every HTTP attempt sent upstream.
type AttemptObserver interface {
	ObserveAttempt()
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if o.Retries < 1 {
		o.Retries = DefaultRetries
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	o.BaseBackoff = max(o.BaseBackoff, 0)
	o.Jitter = max(o.Jitter, 0)
	o.RateLimitCooldown = max(o.RateLimitCooldown, 0)
	return o
}

// DefaultExecutorOptions returns the documented defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		Retries:           DefaultRetries,
		ConnectTimeout:    DefaultConnectTimeout,
		ReadTimeout:       DefaultReadTimeout,
		BaseBackoff:       DefaultBaseBackoff,
		Jitter:            DefaultJitter,
		RateLimitCooldown: DefaultRateLimitCooldown,
	}
}

// Executor 通过端点池发送 JSON-RPC 请求：选点、计时、评分、退避重试
type Executor struct {
	pool     *Pool
	client   *http.Client
	opts     ExecutorOptions
	limiter  *limiter.RateLimiter
	observer AttemptObserver
	logger   *slog.Logger
	metrics  *Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

// NewExecutor binds an executor to an already constructed pool.
func NewExecutor(pool *Pool, opts ExecutorOptions) *Executor {
	opts = opts.withDefaults()

	e := &Executor{
		pool:     pool,
		client:   opts.HTTPClient,
		opts:     opts,
		limiter:  opts.Limiter,
		observer: opts.Observer,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sleep:    sleepCtx,
		jitter:   randomJitter,
	}
	if e.client == nil {
		e.client = NewHTTPClient(opts.ConnectTimeout, opts.ReadTimeout)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = pool.metrics
	}
	return e
}

// NewHTTPClient builds a keep-alive client whose dial and TLS handshake are
// bounded by connect and whose response headers are bounded by read.
func NewHTTPClient(connect, read time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Request 发送一次 JSON-RPC 调用，失败时换端点重试；永不返回 Go error，
// 所有失败都以 failure envelope 的形式交给调用方。
func (e *Executor) Request(ctx context.Context, method string, params []any, id int64) *Envelope {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		return failureEnvelope(id, 0, KindTransport, fmt.Errorf("encode request: %w", err))
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.opts.Retries; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return e.canceled(id, method, attempts, lastErr, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return e.canceled(id, method, attempts, lastErr, err)
		}

		ep := e.pool.NextEndpoint()
		attempts++
		if e.observer != nil {
			e.observer.ObserveAttempt()
		}

		result, latency, attemptErr := e.do(ctx, ep.url, body)
		if attemptErr == nil {
			avg := e.pool.recordCallSuccess(ep, latency)
			e.metrics.RecordRPCRequest(ep.url, method, latency, "")
			return successEnvelope(id, result, Meta{
				Endpoint:     ep.url,
				LatencyMs:    durationMs(latency),
				Attempt:      attempt,
				AvgLatencyMs: durationMs(avg),
			})
		}

		// 调用方取消不算端点的错
		if ctx.Err() != nil {
			return e.canceled(id, method, attempts, lastErr, ctx.Err())
		}

		e.pool.RecordFailure(ep)
		e.metrics.RecordRPCRequest(ep.url, method, latency, attemptErr.Kind)
		lastErr = attemptErr

		e.logger.Warn("rpc_attempt_failed",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.String("endpoint", logging.MaskURL(ep.url)),
			slog.String("kind", string(attemptErr.Kind)),
			slog.String("error", attemptErr.Error()),
		)

		if attempt == e.opts.Retries {
			break
		}
		if wait := e.backoff(attemptErr.Kind, attempt); wait > 0 {
			e.metrics.RecordBackoff(wait)
			if err := e.sleep(ctx, wait); err != nil {
				return e.canceled(id, method, attempts, lastErr, err)
			}
		}
	}

	e.metrics.RecordExhausted(method)
	e.logger.Error("rpc_retries_exhausted",
		slog.String("method", method),
		slog.Int("attempts", attempts),
		slog.String("error", fmt.Sprint(lastErr)),
	)
	return failureEnvelope(id, attempts, KindExhaustedRetries, &ExhaustedError{Attempts: attempts, Last: lastErr})
}

// backoff 按错误类别决定下一次尝试前的等待时间
func (e *Executor) backoff(kind ErrorKind, attempt int) time.Duration {
	switch kind {
	case KindRateLimited:
		return e.opts.RateLimitCooldown
	case KindTransport, KindTimeout:
		return e.opts.BaseBackoff*time.Duration(1<<(attempt-1)) + e.jitter(e.opts.Jitter)
	default:
		return 0
	}
}

func (e *Executor) canceled(id int64, method string, attempts int, lastErr, cause error) *Envelope {
	e.logger.Warn("rpc_request_canceled",
		slog.String("method", method),
		slog.Int("attempts", attempts),
		slog.String("cause", cause.Error()),
	)
	err := fmt.Errorf("request canceled after %d attempts: %w", attempts, cause)
	if lastErr != nil {
		err = fmt.Errorf("%w (last error: %v)", err, lastErr)
	}
	return failureEnvelope(id, attempts, KindCanceled, err)
}

// do performs one POST and classifies the outcome.
func (e *Executor) do(ctx context.Context, url string, body []byte) (json.RawMessage, time.Duration, *AttemptError) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.ConnectTimeout+e.opts.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &AttemptError{Kind: KindTransport, Endpoint: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, time.Since(start), classifyTransport(url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	latency := time.Since(start)
	if err != nil {
		return nil, latency, classifyTransport(url, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		kind := KindHTTPStatus
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			kind = KindRateLimited
		}
		return nil, latency, &AttemptError{
			Kind:       kind,
			Endpoint:   url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", http.StatusText(resp.StatusCode)),
		}
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, latency, &AttemptError{Kind: KindTransport, Endpoint: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return nil, latency, &AttemptError{
			Kind:       KindRPCLogical,
			Endpoint:   url,
			StatusCode: resp.StatusCode,
			Code:       decoded.Error.Code,
			Err:        decoded.Error,
		}
	}
	return decoded.Result, latency, nil
}

// sleepCtx 可取消的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
