package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/app"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/audit"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/contributions"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/cache"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/db"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/reports"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

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
	validate := validator.New()
	recorder := shared.NewAuditRecorder()
	locks := shared.NewLockManager(redisClient, cfg.LockTTL)

	settingsRepo := settings.NewRepository(pool)
	resolver := settings.NewResolver(settingsRepo, redisClient, cfg.SettingsCacheTTL)

	membersRepo := members.NewRepository(pool)
	membersHandler := members.NewHandler(logger, membersRepo)

	loansRepo := loans.NewRepository(pool, recorder)
	loansService := loans.NewService(loansRepo, membersRepo, resolver, locks, logger)
	loansHandler := loans.NewHandler(logger, loansService, validate, metrics)

	contributionsRepo := contributions.NewRepository(pool, recorder)
	contributionsService := contributions.NewService(contributionsRepo, membersRepo, resolver, locks, logger)
	contributionsHandler := contributions.NewHandler(logger, contributionsService, validate, metrics)

	dividendsRepo := dividends.NewRepository(pool, recorder)
	accountant := dividends.NewAccountant(dividendsRepo)
	dividendsService := dividends.NewService(dividendsRepo, membersRepo, accountant, locks, logger)
	dividendsHandler := dividends.NewHandler(logger, dividendsService, accountant, metrics)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	exporter := reports.NewExporter(loansService, dividendsService, resolver)
	reportsHandler := reports.NewHandler(logger, exporter)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		MembersHandler:       membersHandler,
		LoansHandler:         loansHandler,
		ContributionsHandler: contributionsHandler,
		DividendsHandler:     dividendsHandler,
		AuditHandler:         auditHandler,
		ReportsHandler:       reportsHandler,
		JobsHandler:          jobsHandler,
		Metrics:              metrics,
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
