// AngelaMos | 2026
// serve.go

package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/admin"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/auth"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/checkout"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/health"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/server"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/webhook"
)

const (
	drainDelay = 5 * time.Second
)

//nolint:funlen // bootstrap code is inherently verbose
func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := core.Migrate(db, core.MigrateUp, logger); err != nil {
			return err
		}
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT verifier initialized",
		"algorithm", "ES256",
		"issuer", cfg.JWT.Issuer,
	)

	m := metrics.New()

	publisher, err := newPublisher(cfg.Kafka, m, logger)
	if err != nil {
		return err
	}

	entitlementRepo := entitlement.NewRepository(db.DB)
	entitlementSvc := entitlement.NewService(entitlementRepo, publisher, logger)
	entitlementHandler := entitlement.NewHandler(entitlementSvc)

	locks := webhook.NewKeyedLock()
	reconciler := webhook.NewReconciler(webhook.ReconcilerConfig{
		Service:    entitlementSvc,
		Deliveries: webhook.NewDeduplicator(redis.Client, cfg.Webhook.DedupTTL),
		Locks:      locks,
		Metrics:    m,
		Logger:     logger,
		Retry:      webhook.RetryPolicyFromConfig(cfg.Billing),
	})
	webhookHandler := webhook.NewHandler(cfg.Webhook, reconciler, m, logger)

	checkoutClient := checkout.NewClient(cfg.Provider)
	checkoutSvc := checkout.NewService(checkoutClient, cfg.Provider.Timeout, m, logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)
	healthHandler.SetReady(false)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		InFlight:   locks.Len,
		Stats:      entitlementSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	globalLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerWindow(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		FailOpen: true,
		BypassFunc: middleware.BypassPrefixes(
			"/webhooks", "/healthz", "/livez", "/readyz", "/metrics",
		),
		Logger: logger,
	})
	defer globalLimiter.Close()

	checkoutLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerWindow(
			cfg.RateLimit.CheckoutRequests,
			cfg.RateLimit.CheckoutBurst,
			cfg.RateLimit.Window,
		),
		Scope:    "checkout",
		KeyFunc:  middleware.KeyByUser,
		FailOpen: true,
		Logger:   logger,
	})
	defer checkoutLimiter.Close()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(globalLimiter.Handler)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)
	router.Handle("/metrics", m.Handler())

	webhookHandler.RegisterRoutes(router)

	authenticator := middleware.Authenticator(verifier)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		entitlementHandler.RegisterRoutes(r, authenticator)
		entitlementHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		checkoutHandler.RegisterRoutes(r, authenticator, checkoutLimiter.Handler)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go entitlement.NewSweeper(entitlementSvc, cfg.Billing.SweepInterval, m, logger).Run(sweepCtx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	healthHandler.SetReady(true)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := publisher.Close(); err != nil {
		logger.Error("event publisher close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}
