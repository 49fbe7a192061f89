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

	"github.com/habitar-ventas/habitar/internal/app"
	jobmetrics "github.com/habitar-ventas/habitar/internal/jobs"
	"github.com/habitar-ventas/habitar/internal/observability"
	"github.com/habitar-ventas/habitar/internal/platform/cache"
	"github.com/habitar-ventas/habitar/internal/platform/db"
	"github.com/habitar-ventas/habitar/internal/sales/installments"
	"github.com/habitar-ventas/habitar/internal/sales/negotiations"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
	"github.com/habitar-ventas/habitar/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: int32(cfg.WorkerConcurrency) + 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	ledgerCache := cache.NewVersioned(redisClient, "habitar:ledger", cfg.LedgerCacheTTL)

	negotiationsService := negotiations.NewService(
		negotiations.NewRepository(pool),
		negotiations.NewDraftStore(redisClient, cfg.DraftTTL),
		negotiations.Options{
			Policy:      paymentsources.SumPolicy{WarnBelowPercent: cfg.DownPaymentMinPercent},
			Metrics:     metrics,
			Invalidator: ledgerCache,
			Logger:      logger,
		},
	)
	installmentsService := installments.NewService(installments.NewRepository(pool), installments.Options{
		Cache:   ledgerCache,
		Metrics: metrics,
		Logger:  logger,
	})

	sweepJob := jobs.NewCompletionSweepJob(negotiationsService, ledgerCache, logger, jobMetrics)
	warmupJob := jobs.NewLedgerWarmupJob(installmentsService, logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, jobMetrics)

	schedule, err := jobs.DefaultSchedule()
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCompletionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskLedgerWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: schedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
