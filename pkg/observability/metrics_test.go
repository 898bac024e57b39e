package observability

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	// registering the same collectors twice panics
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_PolicyCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.UsageRecorded("sms", 3)
	m.UsageRecorded("sms", 2)
	m.UsageRejected("sms")
	m.GateDenied("require_active_subscription", "trial_expired")
	m.PermissionDenied("lead:delete")
	m.TenantResolved("subdomain", "found")
	m.TenantCacheHit()
	m.TenantCacheHit()
	m.TenantCacheMiss()

	assert.Equal(t, 5.0, testutil.ToFloat64(m.UsageRecordedTotal.WithLabelValues("sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsageRejectedTotal.WithLabelValues("sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDenialsTotal.WithLabelValues("require_active_subscription", "trial_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionDenialsTotal.WithLabelValues("lead:delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TenantLookupsTotal.WithLabelValues("subdomain", "found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TenantCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TenantCacheMisses))
}

func TestMetrics_ObserveConnections(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveConnections(context.Background(), sql.DBStats{InUse: 4, Idle: 2}, 3)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DBConnectionsIdle))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBReplicas))
}

func TestMetrics_MirrorsToOTel(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	om, err := NewOTelMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry()).WithOTel(om)
	m.UsageRecorded("api_calls", 7)
	m.GateDenied("require_tenant", "tenant_required")

	assert.Equal(t, int64(7), sumCounter(t, reader, "crm.usage.recorded"))
	assert.Equal(t, int64(1), sumCounter(t, reader, "crm.policy.rejections"))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(HTTPMetricsMiddleware(m))
	r.HandleFunc("/api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	for _, id := range []string{"u1", "u2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/users/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("DELETE", "/api/v1/users/{id}", "204")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
}

func TestHTTPMetricsMiddleware_Unmatched(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := HTTPMetricsMiddleware(m)(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.UsageRejected("emails")

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crm_usage_rejected_total{metric="emails"} 1`)
}
