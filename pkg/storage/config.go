package storage

import (
	"fmt"
	"time"
)

// Config for the relational store and the shared Redis instance.
type Config struct {
	// Driver is "postgres" in production; "sqlite3" is accepted for local runs.
	Driver       string
	PostgresURL  string
	ReplicaURLs  []string
	MaxConns     int
	MinConns     int
	Timeout      time.Duration
	MaxLifetime  time.Duration
	MaxIdleTime  time.Duration
	HealthPeriod time.Duration

	// Redis config. An empty RedisURL disables Redis-backed components.
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          "postgres",
		MaxConns:        20,
		MinConns:        2,
		Timeout:         5 * time.Second,
		MaxLifetime:     30 * time.Minute,
		MaxIdleTime:     5 * time.Minute,
		HealthPeriod:    30 * time.Second,
		RedisDB:         -1,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}
}

// Validate checks the settings Open relies on.
func (c Config) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.PostgresURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max connections must be at least 1")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) exceeds max connections (%d)", c.MinConns, c.MaxConns)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	return nil
}

// RedisEnabled reports whether a Redis URL was configured.
func (c Config) RedisEnabled() bool {
	return c.RedisURL != ""
}
