package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/adapters/postgres"
	"github.com/kevin07696/billing-service/internal/app"
	"github.com/kevin07696/billing-service/internal/config"
	cronHandler "github.com/kevin07696/billing-service/internal/handlers/cron"
	subscriptionHandler "github.com/kevin07696/billing-service/internal/handlers/subscription"
	"github.com/kevin07696/billing-service/pkg/logging"
	"github.com/kevin07696/billing-service/pkg/middleware"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/resilience"
	"github.com/kevin07696/billing-service/pkg/shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Billing service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting billing service",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := shutdown.SignalContext(context.Background())
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	a, err := app.New(startCtx, cfg, logger, app.Options{})
	cancel()
	if err != nil {
		return err
	}

	shutdowns := shutdown.NewManager(logger, shutdownTimeout)
	shutdowns.RegisterCloser("app", a)

	if pg, ok := a.Store.(*postgres.Store); ok {
		pg.StartPoolMonitoring(ctx, time.Minute)
	}

	timeouts := resilience.DefaultTimeoutConfig()

	billingCron := cronHandler.NewBillingHandler(a.Service, logger, cfg.Server.CronSecret, cfg.Billing.BatchSize)
	shutdowns.Register("cron", billingCron.Shutdown)

	mux := http.NewServeMux()
	subscriptionHandler.NewHandler(a.Service, logger).Register(mux)
	billingCron.Register(mux)
	mux.HandleFunc("GET /health", a.Health.HealthHandler())

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.SecurityHeaders(cfg.IsProduction()),
			rateLimiter.Middleware,
			middleware.Timeout(timeouts, logger),
			observability.HTTPMiddleware,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), a.Health, logger)
	shutdowns.Register("metrics-server", metricsServer.Shutdown)

	if cfg.Billing.ScheduleInterval > 0 {
		worker := shutdown.NewPeriodicWorker("billing-scheduler", cfg.Billing.ScheduleInterval, logger)
		worker.Start(func(ctx context.Context) {
			runCtx, cancel := timeouts.CronContext(ctx)
			defer cancel()
			if _, err := a.Service.NotifyExpiringTrials(runCtx); err != nil {
				logger.Error("Scheduled trial reminders failed", zap.Error(err))
			}
			if _, err := a.Service.ProcessDueBilling(runCtx, time.Time{}, cfg.Billing.BatchSize); err != nil {
				logger.Error("Scheduled billing run failed", zap.Error(err))
			}
		})
		shutdowns.Register("billing-scheduler", worker.Shutdown)
	}

	shutdowns.Register("http-server", httpServer.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}

	if err := shutdowns.Shutdown(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		return err
	}
	logger.Info("Billing service stopped")
	return nil
}
