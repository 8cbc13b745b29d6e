package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"solana-rpcpool-go/internal/rpcpool"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// flakyUpstream answers getSlot, failing with 503 at failRate and adding up to maxDelay latency.
func flakyUpstream(failRate float64, maxDelay time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if maxDelay > 0 {
			time.Sleep(rand.N(maxDelay))
		}
		if rand.Float64() < failRate {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 1})
	}))
}

func main() {
	workers := flag.Int("workers", 32, "concurrent callers")
	total := flag.Int("requests", 5000, "total requests")
	delay := flag.Duration("delay", 5*time.Millisecond, "max upstream latency")
	flag.Parse()

	fmt.Println("rpcpool stress: 3 upstreams with 2%, 30% and 90% failure rates")

	rates := []float64{0.02, 0.30, 0.90}
	urls := make([]string, len(rates))
	for i, rate := range rates {
		srv := flakyUpstream(rate, *delay)
		defer srv.Close()
		urls[i] = srv.URL
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := rpcpool.NewMetrics(prometheus.NewRegistry())
	pool, err := rpcpool.NewPool(urls, rpcpool.PoolOptions{Logger: logger, Metrics: metrics})
	if err != nil {
		panic(err)
	}
	opts := rpcpool.DefaultExecutorOptions()
	opts.Logger = logger
	opts.Metrics = metrics
	exec := rpcpool.NewExecutor(pool, opts)

	var ok, failed, next atomic.Int64
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(start).Seconds()
				fmt.Printf("progress: ok=%d failed=%d rps=%.1f avg_latency=%s\n",
					ok.Load(), failed.Load(), float64(ok.Load()+failed.Load())/elapsed, pool.AverageLatency())
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for i := 0; i < *total; i++ {
		g.Go(func() error {
			if exec.Request(gctx, "getSlot", nil, next.Add(1)).OK() {
				ok.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	fmt.Printf("done in %s: ok=%d failed=%d (%.2f%% success)\n",
		elapsed.Round(time.Millisecond), ok.Load(), failed.Load(), 100*float64(ok.Load())/float64(*total))
	for _, st := range pool.Snapshot() {
		fmt.Printf("  %-28s score=%.2f healthy=%-5t successes=%d failures=%d\n",
			st.URL, st.Score, st.Healthy, st.Successes, st.Failures)
	}
}
