package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Store != app.StorePostgres {
		slog.Default().Error("worker requires APP_STORE=postgres", slog.String("store", cfg.Store))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	tracker := observability.NewTracker(nil)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cfg.Redis().Asynq()
	client := jobs.NewClient(redisOpts)
	defer client.Close()

	// Reminders are themselves notifications, so they go back through the queue.
	services := app.NewServices(app.PostgresBackend(pool, cfg), app.ServiceDeps{
		Authz:    shared.DefaultRoles(),
		Notifier: jobs.NewNotifier(client),
		Logger:   logger,
		Tracker:  tracker,
	})

	notifyJob := jobs.NewNotifyJob(jobs.LogSink{Logger: logger}, tracker, logger)
	remindJob := jobs.NewRemindJob(services.Gate, cfg.ApprovalReminderAge, tracker, logger)
	integrityJob := jobs.NewIntegrityJob(services.Ledger, tracker, logger)

	remindTask, err := jobs.NewRemindTask(0)
	if err != nil {
		logger.Error("build remind task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifyEvent, Handler: notifyJob.Handle},
			{Type: jobs.TaskApprovalsRemind, Handler: remindJob.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: remindTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
