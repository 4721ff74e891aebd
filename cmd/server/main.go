package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/billing-service/internal/adapters/gateway"
	"github.com/kevin07696/billing-service/internal/adapters/postgres"
	"github.com/kevin07696/billing-service/internal/config"
	cronHandler "github.com/kevin07696/billing-service/internal/handlers/cron"
	"github.com/kevin07696/billing-service/internal/services/billing"
	"github.com/kevin07696/billing-service/internal/services/scheduler"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/shutdown"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
	)

	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	// Storage layer
	db := postgres.NewDBExecutor(dbPool)
	cycleRepo := postgres.NewBillingCycleRepository(db)
	invoiceRepo := postgres.NewInvoiceRepository(db)
	overageRepo := postgres.NewOverageRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	subscriptionProvider := postgres.NewSubscriptionProvider(db)

	// Outbound payment gateway
	paymentGateway := gateway.NewHTTPGateway(gateway.Config{
		BaseURL:              cfg.Gateway.BaseURL,
		APIKey:               cfg.Gateway.APIKey,
		Timeout:              cfg.Gateway.Timeout,
		MaxAttemptsPerSecond: cfg.Gateway.MaxAttemptsPerSecond,
		AttemptBurst:         cfg.Gateway.AttemptBurst,
	}, logger)

	// Lifecycle engine
	retryPolicy, err := billing.NewRetryPolicy(cfg.Billing.RetryDelays, cfg.Billing.MaxRetries)
	if err != nil {
		logger.Fatal("Invalid retry policy", zap.Error(err))
	}

	notifier := billing.NewNotificationScheduler(notificationRepo, logger)
	executor := billing.NewPaymentExecutor(paymentGateway, logger)
	suspender := billing.NewSuspensionHandler(subscriptionProvider, notifier, logger)
	invoiceGen := billing.NewPlanInvoiceGenerator(subscriptionProvider)

	processor := billing.NewProcessor(
		db, cycleRepo, invoiceRepo, subscriptionProvider, invoiceGen,
		executor, retryPolicy, notifier, suspender, logger,
	)
	overageBiller := billing.NewOverageBiller(
		db, overageRepo, invoiceRepo, subscriptionProvider,
		executor, notifier,
		cfg.Billing.OverageTaxRate, cfg.Billing.OverageDueIn, logger,
	)

	sched := scheduler.New(scheduler.Config{
		PollInterval:      cfg.Billing.PollInterval,
		MaxConcurrentJobs: cfg.Billing.MaxConcurrentJobs,
		BatchSize:         cfg.Billing.BatchSize,
		MaxRetries:        cfg.Billing.MaxRetries,
		Retention:         cfg.Billing.Retention,
		StaleClaimAfter:   cfg.Billing.StaleClaimAfter,
	}, cycleRepo, subscriptionProvider, processor, overageBiller, logger)

	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP server for cron/admin triggers
	billingCron := cronHandler.NewBillingHandler(sched, processor, overageBiller, logger, cfg.Server.CronSecret)

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/cron/process-billing", billingCron.ProcessBilling)
	httpMux.HandleFunc("/cron/process-cycle", billingCron.ProcessCycle)
	httpMux.HandleFunc("/cron/process-overage", billingCron.ProcessOverage)
	httpMux.HandleFunc("/cron/cleanup", billingCron.Cleanup)
	httpMux.HandleFunc("/cron/status", billingCron.Status)
	httpMux.HandleFunc("/cron/health", billingCron.HealthCheck)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      httpMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Metrics and health probes
	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	logger.Info("Metrics server listening",
		zap.Int("port", cfg.Server.MetricsPort),
	)

	// Graceful shutdown: stop generating work first, drain servers, close
	// the pool last.
	shutdownManager := shutdown.NewManager(logger, 30*time.Second)
	shutdownManager.Register("database", func(ctx context.Context) error {
		dbPool.Close()
		return nil
	})
	shutdownManager.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(metricsServer)
	})
	shutdownManager.Register("http-server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	shutdownManager.Register("scheduler", func(ctx context.Context) error {
		sched.Stop()
		return nil
	})

	shutdownManager.WaitForShutdown()
}

// initLogger initializes the logger
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
