// Package storage opens the configured kvstore backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"authcore/internal/platform/config"
	"authcore/internal/platform/database"
	"authcore/internal/platform/kvstore"
	"authcore/internal/platform/redis"
)

// Opened is a ready store plus what the caller must close on shutdown.
type Opened struct {
	Store kvstore.Store
	// Purger is set when the backend keeps expired entries until swept.
	Purger  kvstore.Purger
	Redis   *redis.Client
	DB      *database.Pool
	closers []io.Closer
}

// Close releases every backend handle.
func (o *Opened) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Health reports the first failing backend.
func (o *Opened) Health(ctx context.Context) error {
	if o.Redis != nil {
		if err := o.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if o.DB != nil {
		if err := o.DB.Health(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

type Deps struct {
	Logger       *slog.Logger
	StoreMetrics *kvstore.Metrics
	RedisMetrics *redis.PoolMetrics
}

// Open builds the backend named by cfg.Store.Backend, wrapped in
// kvstore.Layered when cfg.Store.Layered is set.
func Open(ctx context.Context, cfg *config.Config, deps Deps) (*Opened, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := &Opened{}

	durable, err := openDurable(ctx, cfg, deps, out)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	if durable == nil {
		mem := kvstore.NewMemory()
		out.Store, out.Purger = mem, mem
		return out, nil
	}

	if !cfg.Store.Layered {
		out.Store = durable
		out.Purger, _ = durable.(kvstore.Purger)
		return out, nil
	}
	layered := kvstore.NewLayered(kvstore.NewMemory(), durable,
		kvstore.WithShadowTimeout(cfg.Store.ShadowTimeout),
		kvstore.WithLogger(logger),
		kvstore.WithMetrics(deps.StoreMetrics),
	)
	out.Store, out.Purger = layered, layered
	logger.InfoContext(ctx, "kv store opened", "backend", cfg.Store.Backend, "layered", true)
	return out, nil
}

// openDurable returns nil for the memory backend.
func openDurable(ctx context.Context, cfg *config.Config, deps Deps, out *Opened) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return nil, nil
	case config.BackendBolt:
		bolt, err := kvstore.OpenBolt(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, bolt)
		return bolt, nil
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis, deps.RedisMetrics)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, errors.New("redis backend selected without REDIS_URL")
		}
		out.Redis = client
		out.closers = append(out.closers, client)
		return kvstore.NewRedis(client.Client, cfg.Redis.Namespace+":"), nil
	case config.BackendPostgres:
		return openSQL(ctx, database.DriverPostgres, cfg.Database.URL, kvstore.Postgres, cfg, out)
	case config.BackendSQLite:
		return openSQL(ctx, database.DriverSQLite, cfg.Store.Path, kvstore.SQLite, cfg, out)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openSQL(ctx context.Context, driver, dsn string, dialect kvstore.Dialect, cfg *config.Config, out *Opened) (kvstore.Store, error) {
	pool, err := database.New(ctx, driver, dsn, cfg.Database)
	if err != nil {
		return nil, err
	}
	out.DB = pool
	out.closers = append(out.closers, pool)
	store := kvstore.NewSQL(pool.DB(), dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
