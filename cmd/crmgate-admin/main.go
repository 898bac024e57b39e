package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/cli"
	"github.com/platinummonkey/crmgate/pkg/config"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/storage"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/usage"
)

func main() {
	rootCmd := cli.NewRootCommand(connect, os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect opens the same stores the server is configured with.
func connect(ctx context.Context) (*cli.Env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	db, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	closers := []func() error{db.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisEnabled() {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, redisClient.Close)
	}

	store := tenants.NewSQLStore(db.Primary())
	env := &cli.Env{
		Tenants:   store,
		Lifecycle: tenants.NewLifecycle(store, logger),
		Close:     closeAll,
	}

	if cfg.Audit.Enabled {
		trail := audit.NewSQLStore(db.Primary())
		if err := trail.Migrate(ctx); err != nil {
			closeAll()
			return nil, err
		}
		env.Audit = trail
		env.Lifecycle.WithObserver(audit.NewRecorder(trail, logger))
	}

	if cfg.Auth.SessionBackend == "redis" {
		env.Sessions = auth.NewSessionManager(auth.NewRedisSessionStore(redisClient), cfg.Auth.SessionTTL)
	}

	var counters usage.CounterStore = usage.NewMemoryCounterStore()
	if cfg.Usage.Backend == "redis" {
		counters = usage.NewRedisCounterStore(redisClient)
	} else {
		logger.Warn("Usage backend is memory; reports will be empty")
	}
	env.Meter = usage.NewMeter(counters, logger)
	if cfg.Usage.LimitsFile != "" {
		catalog, err := usage.LoadCatalogFile(cfg.Usage.LimitsFile)
		if err != nil {
			closeAll()
			return nil, err
		}
		env.Meter.WithCatalog(catalog)
	}

	return env, nil
}
