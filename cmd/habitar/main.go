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

	"github.com/habitar-ventas/habitar/cmd/habitar/cli"
	"github.com/habitar-ventas/habitar/internal/app"
	"github.com/habitar-ventas/habitar/internal/observability"
	"github.com/habitar-ventas/habitar/internal/platform/cache"
	"github.com/habitar-ventas/habitar/internal/platform/db"
	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/installments"
	"github.com/habitar-ventas/habitar/internal/sales/negotiations"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
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
	ledgerCache := cache.NewVersioned(redisClient, "habitar:ledger", cfg.LedgerCacheTTL)
	if err := ledgerCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("ledger cache listener", slog.Any("error", err))
	}
	policy := paymentsources.SumPolicy{WarnBelowPercent: cfg.DownPaymentMinPercent}

	housingService := housing.NewService(housing.NewRepository(pool))
	clientsService := clients.NewService(clients.NewRepository(pool), logger)
	sourcesService := paymentsources.NewService(paymentsources.NewRepository(pool), policy, logger)
	negotiationsService := negotiations.NewService(
		negotiations.NewRepository(pool),
		negotiations.NewDraftStore(redisClient, cfg.DraftTTL),
		negotiations.Options{
			Policy:      policy,
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

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Metrics:               metrics,
		HousingHandler:        housing.NewHandler(logger, housingService),
		ClientsHandler:        clients.NewHandler(logger, clientsService),
		NegotiationsHandler:   negotiations.NewHandler(logger, negotiationsService),
		PaymentSourcesHandler: paymentsources.NewHandler(logger, sourcesService),
		InstallmentsHandler:   installments.NewHandler(logger, installmentsService),
		JobHandler:            jobs.NewHandler(inspector, logger),
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

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	return cli.NewJobsCLI(client, inspector).Run(ctx, args, cli.JobsOptions{})
}
