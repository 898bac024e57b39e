package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Policy metrics
	GateDenialsTotal       *prometheus.CounterVec
	PermissionDenialsTotal *prometheus.CounterVec
	UsageRecordedTotal     *prometheus.CounterVec
	UsageRejectedTotal     *prometheus.CounterVec

	// Tenant resolution metrics
	TenantLookupsTotal *prometheus.CounterVec
	TenantCacheHits    prometheus.Counter
	TenantCacheMisses  prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBReplicas          prometheus.Gauge

	// Business metrics
	WebhookEventsTotal   *prometheus.CounterVec
	LifecycleEventsTotal *prometheus.CounterVec
	UsageCountersPurged  prometheus.Counter
	CatalogReloadsTotal  *prometheus.CounterVec

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		GateDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_gate_denials_total",
				Help: "Requests stopped by a tenant gate",
			},
			[]string{"gate", "code"},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_permission_denials_total",
				Help: "Requests denied for a missing permission",
			},
			[]string{"permission"},
		),
		UsageRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_usage_recorded_total",
				Help: "Units of metered usage recorded",
			},
			[]string{"metric"},
		),
		UsageRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_usage_rejected_total",
				Help: "Requests rejected for exceeding a usage limit",
			},
			[]string{"metric"},
		),

		TenantLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_tenant_lookups_total",
				Help: "Tenant resolutions by winning source and result",
			},
			[]string{"source", "result"},
		),
		TenantCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_tenant_cache_hits_total",
				Help: "Tenant cache hits",
			},
		),
		TenantCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_tenant_cache_misses_total",
				Help: "Tenant cache misses",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crm_db_connections_active",
				Help: "Connections in use on the primary",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crm_db_connections_idle",
				Help: "Idle connections on the primary",
			},
		),
		DBReplicas: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crm_db_replicas",
				Help: "Read replicas in rotation",
			},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "result"},
		),
		LifecycleEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_tenant_lifecycle_events_total",
				Help: "Tenant lifecycle transitions",
			},
			[]string{"event"},
		),
		UsageCountersPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_usage_counters_purged_total",
				Help: "Usage counters removed by the monthly reset",
			},
		),
		CatalogReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_usage_catalog_reloads_total",
				Help: "Plan catalog reloads by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.GateDenialsTotal,
		m.PermissionDenialsTotal,
		m.UsageRecordedTotal,
		m.UsageRejectedTotal,
		m.TenantLookupsTotal,
		m.TenantCacheHits,
		m.TenantCacheMisses,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBReplicas,
		m.WebhookEventsTotal,
		m.LifecycleEventsTotal,
		m.UsageCountersPurged,
		m.CatalogReloadsTotal,
	)

	return m
}

// WithOTel mirrors the policy counters to OpenTelemetry instruments.
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	m.otel = o
	return m
}

// UsageRecorded counts amount units of metric.
func (m *Metrics) UsageRecorded(metric string, amount int64) {
	m.UsageRecordedTotal.WithLabelValues(metric).Add(float64(amount))
	if m.otel != nil {
		m.otel.RecordUsage(metric, amount)
	}
}

// UsageRejected counts a request refused for metric.
func (m *Metrics) UsageRejected(metric string) {
	m.UsageRejectedTotal.WithLabelValues(metric).Inc()
	if m.otel != nil {
		m.otel.RecordRejection("usage", metric)
	}
}

// GateDenied counts a request stopped by gate with the denial code.
func (m *Metrics) GateDenied(gate, code string) {
	m.GateDenialsTotal.WithLabelValues(gate, code).Inc()
	if m.otel != nil {
		m.otel.RecordRejection(gate, code)
	}
}

// PermissionDenied counts a missing-permission denial.
func (m *Metrics) PermissionDenied(permission string) {
	m.PermissionDenialsTotal.WithLabelValues(permission).Inc()
}

// TenantResolved counts a resolution. result is "found", "not_found" or "error".
func (m *Metrics) TenantResolved(source, result string) {
	m.TenantLookupsTotal.WithLabelValues(source, result).Inc()
}

// WebhookHandled counts a billing webhook by event type and outcome.
func (m *Metrics) WebhookHandled(eventType, result string) {
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// LifecycleEvent counts a tenant lifecycle transition.
func (m *Metrics) LifecycleEvent(_ context.Context, event, _ string) {
	m.LifecycleEventsTotal.WithLabelValues(event).Inc()
}

// TenantCacheHit and TenantCacheMiss track the tenant read-through cache.
func (m *Metrics) TenantCacheHit()  { m.TenantCacheHits.Inc() }
func (m *Metrics) TenantCacheMiss() { m.TenantCacheMisses.Inc() }

// ObserveConnections publishes primary pool stats and the replica count.
func (m *Metrics) ObserveConnections(ctx context.Context, primary sql.DBStats, replicas int) {
	m.DBConnectionsActive.Set(float64(primary.InUse))
	m.DBConnectionsIdle.Set(float64(primary.Idle))
	m.DBReplicas.Set(float64(replicas))
	if m.otel != nil {
		m.otel.SetDBReplicas(ctx, replicas)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the matched mux route template so that tenant and record
// ids do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must run inside the router so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
