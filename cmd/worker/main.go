package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/app"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/cache"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/db"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	recorder := shared.NewAuditRecorder()
	locks := shared.NewLockManager(redisClient, cfg.LockTTL)

	settingsRepo := settings.NewRepository(pool)
	resolver := settings.NewResolver(settingsRepo, redisClient, cfg.SettingsCacheTTL)

	membersRepo := members.NewRepository(pool)

	loansRepo := loans.NewRepository(pool, recorder)
	loansService := loans.NewService(loansRepo, membersRepo, resolver, locks, logger)

	dividendsRepo := dividends.NewRepository(pool, recorder)
	accountant := dividends.NewAccountant(dividendsRepo)
	dividendsService := dividends.NewService(dividendsRepo, membersRepo, accountant, locks, logger)

	engine, err := resolver.Resolve(ctx)
	if err != nil {
		logger.Error("resolve settings", slog.Any("error", err))
		os.Exit(1)
	}
	distributeTask, err := jobs.NewDistributeTask(jobs.DistributePayload{})
	if err != nil {
		logger.Error("build distribute task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDistributeDividends, Handler: jobs.HandleDistributeTask(dividendsService, resolver, metrics, logger)},
			{Type: jobs.TaskOverdueScan, Handler: jobs.HandleOverdueScanTask(loansService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanCron, Task: jobs.NewOverdueScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			// Fires in the first hour after the configured financial
			// year end; the handler resolves the target year itself.
			{Spec: jobs.DistributeCronSpec(engine), Task: distributeTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
