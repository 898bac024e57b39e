package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/storage"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CRM_TEST_STRING", "custom")
	t.Setenv("CRM_TEST_BOOL_TRUE", "TRUE")
	t.Setenv("CRM_TEST_BOOL_ONE", "1")
	t.Setenv("CRM_TEST_BOOL_NO", "no")
	t.Setenv("CRM_TEST_INT", "42")
	t.Setenv("CRM_TEST_INT_BAD", "forty-two")
	t.Setenv("CRM_TEST_INT64", "9223372036854775807")
	t.Setenv("CRM_TEST_DURATION", "1m30s")
	t.Setenv("CRM_TEST_DURATION_BAD", "soon")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string set", getEnv("CRM_TEST_STRING", "default"), "custom"},
		{"string unset", getEnv("CRM_TEST_UNSET", "default"), "default"},
		{"bool TRUE", getEnvBool("CRM_TEST_BOOL_TRUE", false), true},
		{"bool 1", getEnvBool("CRM_TEST_BOOL_ONE", false), true},
		{"bool other", getEnvBool("CRM_TEST_BOOL_NO", true), false},
		{"bool unset", getEnvBool("CRM_TEST_UNSET", true), true},
		{"int", getEnvInt("CRM_TEST_INT", 0), 42},
		{"int invalid", getEnvInt("CRM_TEST_INT_BAD", 7), 7},
		{"int64", getEnvInt64("CRM_TEST_INT64", 0), int64(9223372036854775807)},
		{"duration", getEnvDuration("CRM_TEST_DURATION", 0), 90 * time.Second},
		{"duration invalid", getEnvDuration("CRM_TEST_DURATION_BAD", time.Second), time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CRM_DATABASE_URL", "postgres://localhost/crm?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Nil(t, cfg.Storage.ReplicaURLs)
	assert.False(t, cfg.Storage.RedisEnabled())

	assert.Equal(t, "X-Tenant-ID", cfg.Tenancy.HeaderName)
	assert.Equal(t, tenants.DefaultLookupTimeout, cfg.Tenancy.LookupTimeout)
	assert.False(t, cfg.Tenancy.SeatHardCap)
	assert.Equal(t, "@hourly", cfg.Tenancy.TrialSweepSchedule)

	assert.Equal(t, "memory", cfg.Usage.Backend)
	assert.False(t, cfg.Usage.HardCap)
	assert.Empty(t, cfg.Usage.LimitsFile)

	assert.Equal(t, "memory", cfg.Auth.SessionBackend)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.Auth.OIDCEnabled())

	assert.True(t, cfg.Audit.Enabled)
	assert.False(t, cfg.Audit.LogAllRequests)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, "@daily", cfg.Audit.CleanupSchedule)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CRM_DATABASE_URL", "postgres://primary/crm")
	t.Setenv("CRM_DATABASE_REPLICA_URLS", "postgres://r1/crm, postgres://r2/crm")
	t.Setenv("CRM_DATABASE_MAX_CONNS", "50")
	t.Setenv("CRM_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("CRM_REDIS_DB", "3")
	t.Setenv("CRM_USAGE_BACKEND", "Redis")
	t.Setenv("CRM_USAGE_HARD_CAP", "true")
	t.Setenv("CRM_USAGE_LIMITS_FILE", "/etc/crmgate/limits.yaml")
	t.Setenv("CRM_SESSION_BACKEND", "redis")
	t.Setenv("CRM_SEAT_HARD_CAP", "1")
	t.Setenv("CRM_TENANT_HEADER", "X-Org")
	t.Setenv("CRM_OIDC_ISSUER", "https://id.example.com")
	t.Setenv("CRM_OIDC_CLIENT_ID", "crm-web")
	t.Setenv("CRM_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("CRM_AUDIT_RETENTION", "720h")
	t.Setenv("CRM_AUDIT_LOG_ALL_REQUESTS", "true")
	t.Setenv("CRM_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"postgres://r1/crm", "postgres://r2/crm"}, cfg.Storage.ReplicaURLs)
	assert.Equal(t, 50, cfg.Storage.MaxConns)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, "redis", cfg.Usage.Backend)
	assert.True(t, cfg.Usage.HardCap)
	assert.Equal(t, "/etc/crmgate/limits.yaml", cfg.Usage.LimitsFile)
	assert.Equal(t, "redis", cfg.Auth.SessionBackend)
	assert.True(t, cfg.Tenancy.SeatHardCap)
	assert.Equal(t, "X-Org", cfg.Tenancy.HeaderName)
	assert.True(t, cfg.Auth.OIDCEnabled())
	assert.Equal(t, "whsec_test", cfg.Billing.StripeWebhookSecret)
	assert.Equal(t, 30*24*time.Hour, cfg.Audit.Retention)
	assert.True(t, cfg.Audit.LogAllRequests)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfig_MissingDatabase(t *testing.T) {
	t.Setenv("CRM_DATABASE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func validConfig() *Config {
	store := storage.DefaultConfig()
	store.PostgresURL = "postgres://localhost/crm"
	return &Config{
		Server:  ServerConfig{Port: "8080", HealthPort: "9090"},
		Storage: store,
		Tenancy: TenancyConfig{HeaderName: "X-Tenant-ID"},
		Usage:   UsageConfig{Backend: "memory"},
		Auth:    AuthConfig{SessionBackend: "memory", SessionTTL: time.Hour},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port is required"},
		{name: "missing health port", mutate: func(c *Config) { c.Server.HealthPort = "" }, wantErr: "health port is required"},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: "must be different"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "oracle" }, wantErr: "storage"},
		{name: "missing tenant header", mutate: func(c *Config) { c.Tenancy.HeaderName = "" }, wantErr: "tenant header"},
		{name: "unknown usage backend", mutate: func(c *Config) { c.Usage.Backend = "etcd" }, wantErr: "invalid usage backend"},
		{name: "redis usage without redis", mutate: func(c *Config) { c.Usage.Backend = "redis" }, wantErr: "requires CRM_REDIS_URL"},
		{
			name: "redis sessions with redis",
			mutate: func(c *Config) {
				c.Auth.SessionBackend = "redis"
				c.Storage.RedisURL = "redis://localhost:6379/0"
			},
		},
		{name: "zero session ttl", mutate: func(c *Config) { c.Auth.SessionTTL = 0 }, wantErr: "session TTL"},
		{name: "negative audit retention", mutate: func(c *Config) { c.Audit.Retention = -time.Hour }, wantErr: "audit retention"},
		{name: "issuer without client", mutate: func(c *Config) { c.Auth.OIDCIssuer = "https://id.example.com" }, wantErr: "OIDC client id"},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "crmgate"
			},
			wantErr: "endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
