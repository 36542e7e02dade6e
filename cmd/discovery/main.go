// The discovery worker polls the upstream feed service on a fixed
// cadence, filters out articles already seen, and seeds the download
// queue. It also serves the discovery status surface.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"genesis-connector/internal/handler/http/status"
	pgRepo "genesis-connector/internal/infra/adapter/persistence/postgres"
	"genesis-connector/internal/infra/db"
	"genesis-connector/internal/infra/feed"
	"genesis-connector/internal/infra/storage"
	workerPkg "genesis-connector/internal/infra/worker"
	"genesis-connector/internal/observability/logging"
	"genesis-connector/internal/observability/tracing"
	cfgutil "genesis-connector/internal/pkg/config"
	queuePkg "genesis-connector/internal/queue"
	"genesis-connector/internal/usecase/discovery"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	shutdownTracing := tracing.InitProvider()
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := workerPkg.NewWorkerMetrics(workerPkg.StageDiscovery)
	cfg, err := workerPkg.LoadConfigFromEnv(workerPkg.StageDiscovery, logger, metrics)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Queue substrate (fail-closed on a bad QUEUE_URL).
	redisClient := openQueueClient(logger)
	defer func() { _ = redisClient.Close() }()
	substrate := queuePkg.New(redisClient)

	// State store.
	database := db.Open()
	defer func() { _ = database.Close() }()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	articles := pgRepo.NewArticleRepo(database)
	publishers := pgRepo.NewPublisherRepo(database)
	stats := pgRepo.NewStatsRepo(database)

	layout, err := storage.NewLayout(cfgutil.LoadEnvString("STORAGE_BASE_PATH", storage.DefaultBasePath))
	if err != nil {
		logger.Error("storage layout init failed", slog.Any("error", err))
		os.Exit(1)
	}

	feedClient := openFeedClient(logger)

	engine := discovery.NewEngine(feedClient, substrate, articles, publishers, stats, logger)

	// The "worker" for discovery is its periodic poll; the supervisor
	// wrapper keeps start/stop parity with the other stages, but cadence
	// comes from cron.
	supervisor := workerPkg.NewSupervisor("discovery", cfg.Interval,
		func(ctx context.Context) (int, error) {
			result, err := engine.RunOnce(ctx)
			if err != nil {
				return 0, err
			}
			return result.NewArticles, nil
		}, metrics, logger)

	maintenance := workerPkg.NewMaintenance(substrate, layout, logger)

	handler := status.NewHandler(status.Config{
		Service:    "discovery-worker",
		Stage:      workerPkg.StageDiscovery,
		Supervisor: supervisor,
		Queue:      substrate,
		Checks: []workerPkg.Check{
			{Name: "feed_service", Probe: feedClient.Health},
			{Name: "queue_substrate", Probe: substrate.Ping},
			{Name: "state_store", Probe: articles.Health},
			{Name: "storage", Probe: func(ctx context.Context) error { return layout.Health() }},
		},
		BatchPath: "/run-discovery",
		Batch: func(ctx context.Context) (any, error) {
			return engine.ForceDiscovery(ctx, 24)
		},
		Cleanup: func(ctx context.Context, days int) (any, error) {
			return maintenance.Cleanup(ctx, days)
		},
		ConfigSnapshot: map[string]any{
			"discovery_interval_seconds": int(cfg.DiscoveryInterval / time.Second),
			"batch_size":                 cfg.BatchSize,
		},
		Logger: logger,
	})
	server := startStatusServer(logger, cfg.Addr(), handler.Routes())

	// One run immediately on start, then on the configured cadence.
	runDiscovery := func() {
		result, err := engine.RunOnce(ctx)
		if err != nil {
			logger.Error("discovery run failed", slog.Any("error", err))
			return
		}
		handler.RecordBatch(result)
	}
	runDiscovery()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every "+cfg.DiscoveryInterval.String(), runDiscovery); err != nil {
		logger.Error("failed to schedule discovery", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()

	logger.Info("discovery worker started",
		slog.Duration("interval", cfg.DiscoveryInterval),
		slog.String("addr", cfg.Addr()))

	<-ctx.Done()
	logger.Info("shutting down")

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("cron jobs did not finish within grace period")
	}
	supervisor.Stop()
	shutdownStatusServer(logger, server)
}

// openQueueClient connects to Redis from QUEUE_URL. Fail-closed: the
// process cannot run without its queue substrate.
func openQueueClient(logger *slog.Logger) *redis.Client {
	queueURL := os.Getenv("QUEUE_URL")
	if queueURL == "" {
		logger.Error("QUEUE_URL not set")
		os.Exit(1)
	}
	opts, err := redis.ParseURL(queueURL)
	if err != nil {
		logger.Error("invalid QUEUE_URL", slog.Any("error", err))
		os.Exit(1)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("queue substrate unreachable", slog.Any("error", err))
		os.Exit(1)
	}
	return client
}

// openFeedClient builds the upstream feed client from FEED_URL and
// FEED_TIMEOUT (seconds). Fail-closed on a missing FEED_URL.
func openFeedClient(logger *slog.Logger) *feed.Client {
	feedURL := os.Getenv("FEED_URL")
	if feedURL == "" {
		logger.Error("FEED_URL not set")
		os.Exit(1)
	}

	// FEED_TIMEOUT is specified in whole seconds.
	result := cfgutil.LoadEnvInt("FEED_TIMEOUT", 30, func(v int) error {
		return cfgutil.ValidateIntRange(v, 1, 600)
	})
	for _, warning := range result.Warnings {
		logger.Warn("invalid FEED_TIMEOUT, using default",
			slog.String("warning", warning))
	}
	timeout := time.Duration(result.Value.(int)) * time.Second

	return feed.NewClient(feedURL, &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	})
}

func startStatusServer(logger *slog.Logger, addr string, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("status server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	return server
}

func shutdownStatusServer(logger *slog.Logger, server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", slog.Any("error", err))
	}
}
