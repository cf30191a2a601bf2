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

	"github.com/hibiken/asynq"

	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/app"
	"github.com/innkeep/innkeep/internal/inventory"
	jobmetrics "github.com/innkeep/innkeep/internal/jobs"
	"github.com/innkeep/innkeep/internal/platform/db"
	"github.com/innkeep/innkeep/internal/reservations"
	"github.com/innkeep/innkeep/internal/shared"
	"github.com/innkeep/innkeep/jobs"
	"github.com/innkeep/innkeep/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	metrics := jobmetrics.NewMetrics(nil)

	// The agency service needs a retry queue even though ApplyStats never
	// enqueues; reuse the regular client.
	jobClient := jobs.NewClient(redisOpts, cfg.AgencyStatsMaxRetry)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	agencyService := agencies.NewService(agencies.NewRepository(pool), jobClient, auditLogger, logger)
	reportClient := report.NewClient(cfg.GotenbergURL, &http.Client{Timeout: 20 * time.Second})

	statsJob := jobs.NewAgencyStatsJob(agencyService, logger, metrics)
	confirmationJob := jobs.NewConfirmationJob(reservations.NewRepository(pool), reportClient, jobs.LogMailer{Logger: logger}, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, metrics)
	reconcileJob := jobs.NewInventoryReconcileJob(inventory.NewReconciler(inventory.NewRepository(pool), logger), logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("prepare cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewInventoryReconcileTask(1, 365)
	if err != nil {
		logger.Error("prepare reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAgencyStatsApply, Handler: statsJob.Handle},
			{Type: jobs.TaskReservationConfirmation, Handler: confirmationJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskInventoryReconcile, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
