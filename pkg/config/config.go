package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/storage"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Tenancy       TenancyConfig
	Usage         UsageConfig
	Auth          AuthConfig
	Billing       BillingConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// TenancyConfig controls tenant resolution.
type TenancyConfig struct {
	// HeaderName carries an explicit tenant id. Used when the host has no
	// tenant subdomain.
	HeaderName    string
	LookupTimeout time.Duration
	CacheSize     int
	CacheTTL      time.Duration

	// SeatHardCap re-counts members after an add and rolls back the add
	// when a concurrent request pushed the tenant over its seat limit.
	SeatHardCap bool

	// TrialSweepSchedule is the cron spec for expiring unpaid trials.
	TrialSweepSchedule string
}

// UsageConfig controls metering.
type UsageConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	// HardCap makes admission reserve the amount atomically instead of the
	// default check-then-record.
	HardCap bool
	// LimitsFile overrides the built-in plan catalog and is watched for
	// changes. Empty keeps the defaults.
	LimitsFile  string
	AsyncRecord bool
	// RecordTimeout bounds an asynchronous record.
	RecordTimeout time.Duration
}

// AuthConfig configures the authenticators.
type AuthConfig struct {
	// SessionBackend is "memory" or "redis".
	SessionBackend   string
	SessionTTL       time.Duration
	SessionCacheSize int

	OIDCIssuer   string
	OIDCClientID string
}

// OIDCEnabled reports whether an identity provider is configured.
func (c AuthConfig) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// BillingConfig configures payment provider webhooks.
type BillingConfig struct {
	StripeWebhookSecret string
}

// AuditConfig controls the tenant audit trail.
type AuditConfig struct {
	Enabled bool
	// LogAllRequests also records successful reads.
	LogAllRequests bool
	// Retention is how long events are kept. Zero keeps them forever.
	Retention       time.Duration
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Tenancy:       loadTenancyConfig(),
		Usage:         loadUsageConfig(),
		Auth:          loadAuthConfig(),
		Billing:       loadBillingConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CRM_HOST", "0.0.0.0"),
		Port:            getEnv("CRM_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CRM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CRM_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CRM_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CRM_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("CRM_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("CRM_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig overlays CRM_DATABASE_* and CRM_REDIS_* on the storage
// defaults.
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("CRM_DATABASE_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	cfg.PostgresURL = getEnv("CRM_DATABASE_URL", cfg.PostgresURL)
	cfg.ReplicaURLs = storage.ParseReplicaURLs(getEnv("CRM_DATABASE_REPLICA_URLS", ""))
	if maxConns := getEnvInt("CRM_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("CRM_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("CRM_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	if period := getEnvDuration("CRM_DATABASE_HEALTH_PERIOD", 0); period > 0 {
		cfg.HealthPeriod = period
	}

	cfg.RedisURL = getEnv("CRM_REDIS_URL", "")
	cfg.RedisPassword = getEnv("CRM_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("CRM_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("CRM_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("CRM_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

func loadTenancyConfig() TenancyConfig {
	return TenancyConfig{
		HeaderName:         getEnv("CRM_TENANT_HEADER", "X-Tenant-ID"),
		LookupTimeout:      getEnvDuration("CRM_TENANT_LOOKUP_TIMEOUT", tenants.DefaultLookupTimeout),
		CacheSize:          getEnvInt("CRM_TENANT_CACHE_SIZE", 4096),
		CacheTTL:           getEnvDuration("CRM_TENANT_CACHE_TTL", 30*time.Second),
		SeatHardCap:        getEnvBool("CRM_SEAT_HARD_CAP", false),
		TrialSweepSchedule: getEnv("CRM_TRIAL_SWEEP_SCHEDULE", "@hourly"),
	}
}

func loadUsageConfig() UsageConfig {
	return UsageConfig{
		Backend:       strings.ToLower(getEnv("CRM_USAGE_BACKEND", "memory")),
		HardCap:       getEnvBool("CRM_USAGE_HARD_CAP", false),
		LimitsFile:    getEnv("CRM_USAGE_LIMITS_FILE", ""),
		AsyncRecord:   getEnvBool("CRM_USAGE_ASYNC_RECORD", false),
		RecordTimeout: getEnvDuration("CRM_USAGE_RECORD_TIMEOUT", 5*time.Second),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SessionBackend:   strings.ToLower(getEnv("CRM_SESSION_BACKEND", "memory")),
		SessionTTL:       getEnvDuration("CRM_SESSION_TTL", 12*time.Hour),
		SessionCacheSize: getEnvInt("CRM_SESSION_CACHE_SIZE", 100000),
		OIDCIssuer:       getEnv("CRM_OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("CRM_OIDC_CLIENT_ID", ""),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		StripeWebhookSecret: getEnv("CRM_STRIPE_WEBHOOK_SECRET", ""),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:         getEnvBool("CRM_AUDIT_ENABLED", true),
		LogAllRequests:  getEnvBool("CRM_AUDIT_LOG_ALL_REQUESTS", false),
		Retention:       getEnvDuration("CRM_AUDIT_RETENTION", 90*24*time.Hour),
		CleanupSchedule: getEnv("CRM_AUDIT_CLEANUP_SCHEDULE", "@daily"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CRM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CRM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CRM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CRM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CRM_OTEL_SERVICE_NAME", "crmgate"),
		OTelServiceVersion: getEnv("CRM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CRM_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Tenancy.HeaderName == "" {
		return fmt.Errorf("tenant header name is required")
	}

	if err := validateBackend("usage", c.Usage.Backend, c.Storage); err != nil {
		return err
	}
	if err := validateBackend("session", c.Auth.SessionBackend, c.Storage); err != nil {
		return err
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Auth.OIDCEnabled() && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client id is required when an issuer is set")
	}

	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit retention must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func validateBackend(name, backend string, store storage.Config) error {
	switch backend {
	case "memory":
		return nil
	case "redis":
		if !store.RedisEnabled() {
			return fmt.Errorf("%s backend redis requires CRM_REDIS_URL", name)
		}
		return nil
	default:
		return fmt.Errorf("invalid %s backend: %s (must be memory or redis)", name, backend)
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
