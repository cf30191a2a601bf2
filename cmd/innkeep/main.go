package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/innkeep/innkeep/cmd/innkeep/cli"
	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/app"
	"github.com/innkeep/innkeep/internal/audit"
	audithttp "github.com/innkeep/innkeep/internal/audit/http"
	"github.com/innkeep/innkeep/internal/catalog"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/observability"
	"github.com/innkeep/innkeep/internal/platform/cache"
	"github.com/innkeep/innkeep/internal/platform/db"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/rbac"
	"github.com/innkeep/innkeep/internal/reservations"
	"github.com/innkeep/innkeep/internal/shared"
	"github.com/innkeep/innkeep/jobs"
	"github.com/innkeep/innkeep/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, redisOpts, os.Args[2:]))
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	readiness := map[string]app.ReadinessCheck{"postgres": pool.Ping}

	metrics := observability.NewMetrics()
	inventoryCfg := inventory.ServiceConfig{Metrics: metrics}
	var calendarCache inventory.CalendarCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// Calendar reads fall back to Postgres.
		logger.Warn("redis unavailable, calendar cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		availabilityCache := inventory.NewAvailabilityCache(redisClient, cfg.AvailabilityCacheTTL)
		inventoryCfg.Cache = availabilityCache
		calendarCache = availabilityCache
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	taxRate, err := cfg.Tax()
	if err != nil {
		logger.Error("tax rate", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient := jobs.NewClient(redisOpts, cfg.AgencyStatsMaxRetry)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	rbacMiddleware := rbac.Middleware{Service: rbac.NewDefaultService(), Logger: logger}

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger, inventoryCfg)
	pricingService := pricing.NewService(pricing.NewRepository(pool), auditLogger, logger, taxRate)
	agencyService := agencies.NewService(agencies.NewRepository(pool), jobClient, auditLogger, logger)
	reservationService := reservations.NewService(reservations.Deps{
		Repo:        reservations.NewRepository(pool),
		Catalog:     catalogService,
		Inventory:   inventoryService,
		Pricing:     pricingService,
		Agencies:    agencyService,
		Idempotency: idempotencyStore,
		Notifier:    jobClient,
		Metrics:     metrics,
		Audit:       auditLogger,
		Logger:      logger,
	})
	auditService := audit.NewService(audit.NewRepository(pool))

	reportClient := report.NewClient(cfg.GotenbergURL, &http.Client{Timeout: 20 * time.Second})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		InventoryHandler:    inventory.NewHandler(logger, inventoryService, calendarCache, catalogService, rbacMiddleware),
		PricingHandler:      pricing.NewHandler(logger, pricingService, inventoryService, catalogService, rbacMiddleware),
		AgenciesHandler:     agencies.NewHandler(logger, agencyService, rbacMiddleware),
		ReservationsHandler: reservations.NewHandler(logger, reservationService, auditService, reportClient, rbacMiddleware),
		AuditHandler:        audithttp.NewHandler(logger, auditService, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, rbacMiddleware.Service, rbacMiddleware),
		ReportHandler:       report.NewHandler(reportClient, logger),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Readiness:           readiness,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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

// runJobsCommand handles `innkeep jobs trigger <task>` and `innkeep jobs stats`.
func runJobsCommand(ctx context.Context, cfg *app.Config, redisOpts asynq.RedisClientOpt, args []string) int {
	c := cli.NewJobsCLI(redisOpts)
	defer func() { _ = c.Close() }()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := c.Trigger(ctx, args[1], cfg.IdempotencyRetention)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case len(args) == 1 && args[0] == "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, s := range stats {
			fmt.Printf("%-9s pending=%d active=%d scheduled=%d retry=%d archived=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	case len(args) == 1 && args[0] == "retries":
		tasks, err := c.ListRetries(ctx, 20)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s %s retried=%d last_err=%q\n", t.ID, t.Type, t.Retried, t.LastErr)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: innkeep jobs trigger <inventory:reconcile|idempotency:cleanup> | stats | retries")
		return 2
	}
	return 0
}
