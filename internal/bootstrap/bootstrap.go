// Package bootstrap assembles the store, catalog, cache and service shared by every binary.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bhavikpatel576/timely/internal/cache"
	"github.com/Bhavikpatel576/timely/internal/config"
	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/palette"
	"github.com/Bhavikpatel576/timely/internal/persistence/memory"
	"github.com/Bhavikpatel576/timely/internal/persistence/postgres"
	"github.com/Bhavikpatel576/timely/internal/seed"
)

// App holds the wired components. Pool is nil for the memory store.
type App struct {
	Service *domain.Service
	Store   domain.Store
	Pool    *pgxpool.Pool

	logger  *slog.Logger
	closers []func()
}

// Options tunes Open beyond what the configuration carries.
type Options struct {
	// SkipSeed leaves the catalog untouched, used by the migrate command.
	SkipSeed bool
}

type seedableStore interface {
	domain.Store
	seed.Target
}

// Open connects the configured store, applies migrations and the built-in catalog when
// enabled and returns a ready service.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{logger: logger}
	store, err := app.openStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	if cfg.Seed && !opts.SkipSeed {
		catalog, err := seed.Builtin()
		if err != nil {
			app.Close()
			return nil, err
		}
		if _, err := seed.Apply(ctx, store, catalog, logger); err != nil {
			app.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
	}

	svcOpts := []domain.Option{
		domain.WithLocation(loc),
		domain.WithPalette(palette.New(nil)),
		domain.WithLogger(logger),
	}
	if cfg.UseRedisCache() {
		rc, err := cache.NewRedis(ctx, cache.Options{URL: cfg.RedisURL, TTL: cfg.CacheTTL})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rc.Close() })
		svcOpts = append(svcOpts, domain.WithCache(rc))
		logger.Info("report cache enabled", "backend", "redis")
	}

	app.Service = domain.NewService(store, svcOpts...)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (seedableStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		a.logger.Warn("using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL, cfg.ConnectWait)
		if err != nil {
			return nil, fmt.Errorf("connecting postgres: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return nil, err
			}
		}
		return postgres.NewRepository(pool,
			postgres.WithChangeLog(cfg.OutboxEnabled),
			postgres.WithRuleChangeTopic(cfg.RuleChangesTopic),
		), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
