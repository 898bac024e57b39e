// Package config loads crmgate configuration from CRM_* environment
// variables with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CRM_HOST="0.0.0.0"
//	CRM_PORT="8080"
//	CRM_HEALTH_PORT="9090"
//	CRM_READ_TIMEOUT="15s"
//	CRM_MAX_BODY_BYTES="1048576"
//
// Database and Redis:
//
//	CRM_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	CRM_DATABASE_URL="postgres://localhost/crm?sslmode=disable"
//	CRM_DATABASE_REPLICA_URLS="postgres://replica1/crm,postgres://replica2/crm"
//	CRM_REDIS_URL="redis://localhost:6379/0"
//
// Tenancy:
//
//	CRM_TENANT_HEADER="X-Tenant-ID"
//	CRM_TENANT_LOOKUP_TIMEOUT="2s"
//	CRM_TENANT_CACHE_TTL="30s"
//	CRM_SEAT_HARD_CAP="false"
//	CRM_TRIAL_SWEEP_SCHEDULE="@hourly"
//
// Usage metering:
//
//	CRM_USAGE_BACKEND="redis"  # memory, redis
//	CRM_USAGE_HARD_CAP="false"
//	CRM_USAGE_LIMITS_FILE="/etc/crmgate/limits.yaml"
//	CRM_USAGE_ASYNC_RECORD="true"
//
// Auth and billing:
//
//	CRM_SESSION_BACKEND="redis"  # memory, redis
//	CRM_SESSION_TTL="12h"
//	CRM_OIDC_ISSUER="https://id.example.com"
//	CRM_OIDC_CLIENT_ID="crm-web"
//	CRM_STRIPE_WEBHOOK_SECRET="whsec_..."
//
// Audit trail:
//
//	CRM_AUDIT_ENABLED="true"
//	CRM_AUDIT_LOG_ALL_REQUESTS="false"
//	CRM_AUDIT_RETENTION="2160h"  # 0 keeps events forever
//	CRM_AUDIT_CLEANUP_SCHEDULE="@daily"
//
// Observability:
//
//	CRM_LOG_LEVEL="info"  # debug, info, warn, error
//	CRM_METRICS_ENABLED="true"
//	CRM_OTEL_ENABLED="true"
//	CRM_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: database and Redis settings
//   - pkg/observability: log level and telemetry exporters
package config
