package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/crmgate/pkg/api"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/billing"
	"github.com/platinummonkey/crmgate/pkg/config"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/storage"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName).
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("crmgate exited with error")
		os.Exit(1)
	}
	logger.Info("crmgate stopped")
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	// Telemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}
	shutdown.Register("opentelemetry", providers.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(otel.Meter("github.com/platinummonkey/crmgate"))
		if err != nil {
			return fmt.Errorf("create otel instruments: %w", err)
		}
		metrics.WithOTel(otelMetrics)
	}

	// Storage
	db, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	db.StartHealthCheckRoutine(ctx, cfg.Storage.HealthPeriod)
	go observeConnections(ctx, logger, db, metrics, cfg.Storage.HealthPeriod)

	var redisClient *redis.Client
	if cfg.Storage.RedisEnabled() {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	// Tenancy
	sqlStore := tenants.NewSQLStore(db.Primary()).WithReader(db.Replica())
	if err := sqlStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate tenant schema: %w", err)
	}
	tenantStore := tenants.NewCachedStore(sqlStore, cfg.Tenancy.CacheSize, cfg.Tenancy.CacheTTL)
	tenantStore.OnLookup = func(hit bool) {
		if hit {
			metrics.TenantCacheHit()
		} else {
			metrics.TenantCacheMiss()
		}
	}
	lifecycle := tenants.NewLifecycle(tenantStore, logger).WithObserver(metrics)

	// Audit trail
	var auditStore audit.Store
	if cfg.Audit.Enabled {
		trail := audit.NewSQLStore(db.Primary())
		if err := trail.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate audit schema: %w", err)
		}
		auditStore = trail
		lifecycle.WithObserver(audit.NewRecorder(trail, logger))
	}

	// Authentication
	var sessionStore auth.SessionStore
	if cfg.Auth.SessionBackend == "redis" {
		sessionStore = auth.NewRedisSessionStore(redisClient)
	} else {
		sessionStore = auth.NewMemorySessionStore(cfg.Auth.SessionCacheSize, cfg.Auth.SessionTTL)
	}
	authn := auth.Authenticators{auth.NewSessionManager(sessionStore, cfg.Auth.SessionTTL)}
	if cfg.Auth.OIDCEnabled() {
		oidcAuth, err := auth.DiscoverOIDC(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			return err
		}
		authn = append(authn, oidcAuth)
		logger.WithField("issuer", cfg.Auth.OIDCIssuer).Info("OIDC authentication enabled")
	}

	// Usage metering
	var counters usage.CounterStore
	if cfg.Usage.Backend == "redis" {
		counters = usage.NewRedisCounterStore(redisClient)
	} else {
		counters = usage.NewMemoryCounterStore()
	}
	meter := usage.NewMeter(counters, logger).
		WithHardCap(cfg.Usage.HardCap).
		WithObserver(metrics)

	if cfg.Usage.LimitsFile != "" {
		watcher, err := usage.NewCatalogWatcher(cfg.Usage.LimitsFile, meter)
		if err != nil {
			return fmt.Errorf("load usage limits: %w", err)
		}
		watcher.OnReload = func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			metrics.CatalogReloadsTotal.WithLabelValues(result).Inc()
		}
		go watcher.Run(ctx)
	}

	// Scheduled jobs
	scheduler := usage.NewScheduler()
	resetter := usage.NewResetter(counters, logger)
	resetter.OnReset = func(purged int) { metrics.UsageCountersPurged.Add(float64(purged)) }
	if _, err := resetter.Schedule(scheduler); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.Tenancy.TrialSweepSchedule, func() {
		defer observability.RecoverPanic(logger, "trial sweep")

		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		n, err := lifecycle.ExpireTrials(sweepCtx)
		if err != nil {
			logger.WithError(err).Error("Trial sweep failed")
			return
		}
		if n > 0 {
			logger.WithField("expired", n).Info("Expired unpaid trials")
		}
	}); err != nil {
		return fmt.Errorf("schedule trial sweep: %w", err)
	}
	if auditStore != nil && cfg.Audit.Retention > 0 {
		if _, err := scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
			defer observability.RecoverPanic(logger, "audit cleanup")

			cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			n, err := auditStore.Cleanup(cleanupCtx, time.Now().Add(-cfg.Audit.Retention))
			if err != nil {
				logger.WithError(err).Error("Audit cleanup failed")
				return
			}
			logger.WithField("deleted", n).Info("Pruned audit events")
		}); err != nil {
			return fmt.Errorf("schedule audit cleanup: %w", err)
		}
	}
	scheduler.Start()
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// Billing
	var webhooks http.Handler
	if cfg.Billing.StripeWebhookSecret != "" {
		webhooks = billing.NewWebhookProcessor(cfg.Billing.StripeWebhookSecret, lifecycle, tenantStore, logger).
			WithObserver(metrics)
	} else {
		logger.Warn("Stripe webhook secret not set; billing webhooks disabled")
	}

	// HTTP
	server := api.NewServer(api.Config{
		TenantHeader:     cfg.Tenancy.HeaderName,
		SeatHardCap:      cfg.Tenancy.SeatHardCap,
		AsyncUsage:       cfg.Usage.AsyncRecord,
		RecordTimeout:    cfg.Usage.RecordTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		AuditAllRequests: cfg.Audit.LogAllRequests,
	}, api.Deps{
		Authenticator: authn,
		Tenants:       tenantStore,
		Resolver:      tenants.NewResolver(tenantStore, cfg.Tenancy.LookupTimeout),
		Lifecycle:     lifecycle,
		Meter:         meter,
		Metrics:       metrics,
		Webhooks:      webhooks,
		Audit:         auditStore,
		Logger:        logger,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server, "crmgate"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db.Primary(), redisClient, version).WithReplicas(db)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-serveErr:
			logger.WithError(err).Error("HTTP server failed")
			failed <- err
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	if err := shutdown.Wait(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

// observeConnections publishes pool stats until ctx is done.
func observeConnections(ctx context.Context, logger *observability.Logger, db *storage.ConnectionManager, metrics *observability.Metrics, every time.Duration) {
	defer observability.RecoverPanic(logger, "connection stats")
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		metrics.ObserveConnections(ctx, db.Stats().Primary, db.ReplicaCount())
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
