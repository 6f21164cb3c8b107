package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/internal/store/postgres"
	"github.com/odyssey-erp/stockledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var backend app.Backend
	switch cfg.Store {
	case app.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		backend = app.MemoryBackend(memory.New())
	default:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.PGMigrate {
			if err := postgres.New(pool).Migrate(ctx); err != nil {
				logger.Error("migrate", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("schema applied")
		}
		backend = app.PostgresBackend(pool, cfg)
	}

	var (
		notifier   shared.Notifier = jobs.InlineNotifier{Job: jobs.NewNotifyJob(jobs.LogSink{Logger: logger}, metrics.Operations(), logger)}
		jobHandler                 = jobs.NewHandler(nil, logger)
	)
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable; catalog cache disabled and notifications delivered inline", slog.Any("error", err))
	} else {
		defer closeRedis(logger, redisClient)
		backend.Catalog = catalog.NewCachedLookup(backend.Catalog, redisClient, cfg.CatalogCacheTTL, logger)

		redisOpts := cfg.Redis().Asynq()
		client := jobs.NewClient(redisOpts)
		defer client.Close()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		notifier = jobs.NewNotifier(client)
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	services := app.NewServices(backend, app.ServiceDeps{
		Authz:             shared.DefaultRoles(),
		Notifier:          notifier,
		Logger:            logger,
		Tracker:           metrics.Operations(),
		VarianceThreshold: cfg.Threshold(),
	})

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Services:   services,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func closeRedis(logger *slog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
