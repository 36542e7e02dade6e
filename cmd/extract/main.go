// The extract worker consumes parse tasks (or, when the queue runs dry,
// discovers work from the filesystem), extracts the main article text,
// and records the text artifact. It also serves the extract status
// surface.
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

	"github.com/redis/go-redis/v9"

	"genesis-connector/internal/handler/http/status"
	pgRepo "genesis-connector/internal/infra/adapter/persistence/postgres"
	"genesis-connector/internal/infra/db"
	"genesis-connector/internal/infra/storage"
	workerPkg "genesis-connector/internal/infra/worker"
	"genesis-connector/internal/observability/logging"
	"genesis-connector/internal/observability/tracing"
	cfgutil "genesis-connector/internal/pkg/config"
	queuePkg "genesis-connector/internal/queue"
	"genesis-connector/internal/usecase/extract"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	shutdownTracing := tracing.InitProvider()
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := workerPkg.NewWorkerMetrics(workerPkg.StageExtract)
	cfg, err := workerPkg.LoadConfigFromEnv(workerPkg.StageExtract, logger, metrics)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := openQueueClient(logger)
	defer func() { _ = redisClient.Close() }()
	substrate := queuePkg.New(redisClient)

	database := db.Open()
	defer func() { _ = database.Close() }()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	articles := pgRepo.NewArticleRepo(database)
	stats := pgRepo.NewStatsRepo(database)

	layout, err := storage.NewLayout(cfgutil.LoadEnvString("STORAGE_BASE_PATH", storage.DefaultBasePath))
	if err != nil {
		logger.Error("storage layout init failed", slog.Any("error", err))
		os.Exit(1)
	}

	engine := extract.NewEngine(substrate, layout, articles, stats, cfg.MaxRetries, logger)

	supervisor := workerPkg.NewSupervisor("extract", cfg.Interval,
		func(ctx context.Context) (int, error) {
			result, err := engine.RunBatch(ctx, cfg.BatchSize)
			if err != nil {
				return 0, err
			}
			metrics.RecordTasks(result.Succeeded, result.Retried, result.Failed)
			return result.Processed, nil
		}, metrics, logger)

	maintenance := workerPkg.NewMaintenance(substrate, layout, logger)

	handler := status.NewHandler(status.Config{
		Service:    "extract-worker",
		Stage:      workerPkg.StageExtract,
		Supervisor: supervisor,
		Queue:      substrate,
		Checks: []workerPkg.Check{
			{Name: "queue_substrate", Probe: substrate.Ping},
			{Name: "state_store", Probe: articles.Health},
			{Name: "storage", Probe: func(ctx context.Context) error { return layout.Health() }},
		},
		BatchPath: "/extract-batch",
		Batch: func(ctx context.Context) (any, error) {
			return engine.RunBatch(ctx, cfg.BatchSize)
		},
		Cleanup: func(ctx context.Context, days int) (any, error) {
			return maintenance.Cleanup(ctx, days)
		},
		ConfigSnapshot: map[string]any{
			"batch_size":   cfg.BatchSize,
			"max_retries":  cfg.MaxRetries,
			"storage_base": layout.Base(),
		},
		Logger: logger,
	})
	server := startStatusServer(logger, cfg.Addr(), handler.Routes())

	supervisor.Start(ctx)
	logger.Info("extract worker started",
		slog.Int("batch_size", cfg.BatchSize),
		slog.String("addr", cfg.Addr()))

	<-ctx.Done()
	logger.Info("shutting down")

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
