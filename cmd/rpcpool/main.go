package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-rpcpool-go/internal/config"
	"solana-rpcpool-go/internal/database"
	"solana-rpcpool-go/internal/limiter"
	"solana-rpcpool-go/internal/logging"
	"solana-rpcpool-go/internal/monitor"
	"solana-rpcpool-go/internal/recovery"
	"solana-rpcpool-go/internal/rpcpool"
	"solana-rpcpool-go/internal/solana"
	"solana-rpcpool-go/internal/web"

	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	recovery.Logger = logger

	if err := run(cfg, logger); err != nil {
		logger.Error("rpcpool_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fallbacks := rpcpool.DefaultFallbackURLs
	if cfg.DisableFallbacks {
		fallbacks = nil
	}
	urls := rpcpool.BuildEndpointURLs(cfg.PrimaryRPCURL, cfg.ExtraRPCURLs, fallbacks)

	pool, err := rpcpool.NewPool(urls, rpcpool.PoolOptions{
		LatencyWindow: cfg.LatencyWindow,
		Logger:        logger,
		Metrics:       rpcpool.GetMetrics(),
	})
	if err != nil {
		return err
	}

	prober := rpcpool.NewHealthProber(cfg.ConnectTimeout, cfg.ReadTimeout)
	healthy := pool.Warmup(ctx, prober)
	logger.Info("rpcpool_ready", slog.Int("endpoints", pool.Size()), slog.Int("responding", healthy))

	quota := monitor.NewQuotaMonitor(cfg.DailyQuota, prometheus.DefaultRegisterer)
	usage := monitor.NewUsage(quota)

	rl := limiter.NewRateLimiter(cfg.MaxRPS)
	exec := rpcpool.NewExecutor(pool, rpcpool.ExecutorOptions{
		Retries:           cfg.Retries,
		ConnectTimeout:    cfg.ConnectTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		BaseBackoff:       cfg.BaseBackoff,
		Jitter:            cfg.Jitter,
		RateLimitCooldown: cfg.RateLimitCooldown,
		Limiter:           rl,
		Observer:          usage,
		Logger:            logger,
		Metrics:           rpcpool.GetMetrics(),
	})

	hub := web.NewHub()
	hub.Greeting = func() any { return web.StatusEvent(pool) }

	srv := &Server{
		Pool:    pool,
		Client:  solana.NewClient(exec),
		Prober:  prober,
		Usage:   usage,
		Limiter: rl,
		Hub:     hub,
		logger:  logger,
	}

	var workers []<-chan struct{}
	workers = append(workers,
		recovery.Supervise(ctx, "ws_hub", hub.Run),
		recovery.Supervise(ctx, "status_publisher", web.NewStatusPublisher(pool, hub, time.Second).Run),
		recovery.Supervise(ctx, "quota_reset", quota.Run),
	)

	if cfg.DatabaseURL != "" {
		repo, err := database.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := database.InitSchema(ctx, repo.DB()); err != nil {
			return err
		}
		srv.History = repo
		recorder := database.NewRecorder(pool, repo, cfg.SnapshotInterval, cfg.SnapshotRetention)
		workers = append(workers, recovery.Supervise(ctx, "snapshot_recorder", recorder.Run))
	} else {
		logger.Info("snapshot_store_disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// upstream retries can take several read timeouts
		WriteTimeout: time.Duration(cfg.Retries+1)*(cfg.ConnectTimeout+cfg.ReadTimeout) + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_server_listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-serveErr:
		if err != nil {
			stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_incomplete", slog.String("error", err.Error()))
	}

	stop()
	for _, done := range workers {
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}
	logger.Info("shutdown_complete")
	return nil
}
