package rpcpool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, urls ...string) *Pool {
	t.Helper()
	p, err := NewPool(urls, PoolOptions{
		LatencyWindow: 16,
		Logger:        discardLogger(),
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return p
}

// newTestExecutor returns an executor that records sleeps instead of sleeping.
func newTestExecutor(p *Pool, opts ExecutorOptions) (*Executor, *[]time.Duration) {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	e := NewExecutor(p, opts)
	slept := &[]time.Duration{}
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	e.jitter = func(time.Duration) time.Duration { return 0 }
	return e, slept
}

// rpcStub serves JSON-RPC, echoing the request id back.
func rpcStub(t *testing.T, handle func(req request) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okResult(req request, result any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
}

func endpointByURL(t *testing.T, p *Pool, url string) *Endpoint {
	t.Helper()
	for _, ep := range p.endpoints {
		if ep.url == url {
			return ep
		}
	}
	t.Fatalf("endpoint %s not in pool", url)
	return nil
}
