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
	"github.com/redis/go-redis/v9"

	"github.com/autohaus-erp/autohaus-erp/internal/app"
	"github.com/autohaus-erp/autohaus-erp/internal/catalog"
	"github.com/autohaus-erp/autohaus-erp/internal/finance"
	"github.com/autohaus-erp/autohaus-erp/internal/ledger"
	"github.com/autohaus-erp/autohaus-erp/internal/observability"
	"github.com/autohaus-erp/autohaus-erp/internal/platform/db"
	"github.com/autohaus-erp/autohaus-erp/internal/purchasing"
	"github.com/autohaus-erp/autohaus-erp/internal/sales"
	"github.com/autohaus-erp/autohaus-erp/internal/shared"
	"github.com/autohaus-erp/autohaus-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	availabilityCache := catalog.NewCache(redisClient, 5*time.Minute)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, availabilityCache)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, idempotencyStore, jobsClient)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, availabilityCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	financeRepo := finance.NewRepository(pool)
	financeService := finance.NewService(financeRepo)
	financeHandler := finance.NewHandler(logger, financeService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, catalogRepo, ledgerService, availabilityCache, auditLogger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, catalogRepo, financeService, ledgerService, availabilityCache, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		CatalogHandler:    catalogHandler,
		PurchasingHandler: purchasingHandler,
		SalesHandler:      salesHandler,
		FinanceHandler:    financeHandler,
		Metrics:           metrics,
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
