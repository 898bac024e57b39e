// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("Tenant suspended")
//
// The request logger travels in the context:
//
//	ctx = observability.WithLogger(ctx, logger.WithField("request_id", id))
//	observability.FromContext(ctx).Warn("Usage record failed")
//
// # Prometheus Metrics
//
// Metrics implements the usage meter's observer and counts gate and
// permission denials:
//
//	metrics := observability.NewMetrics(registry)
//	meter.WithObserver(metrics)
//	metrics.GateDenied("require_active_subscription", "trial_expired")
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "crmgate",
//		Insecure:    true,
//	}, logger)
//	defer providers.Shutdown(ctx)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version).WithReplicas(connManager)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: Request logging middleware
package observability
