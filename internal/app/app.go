// Package app assembles the ledger from configuration: the store stack,
// the market locker, the event publishers and the engines on top.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/playmarket/internal/account"
	"github.com/atmx/playmarket/internal/archive"
	"github.com/atmx/playmarket/internal/config"
	"github.com/atmx/playmarket/internal/events"
	"github.com/atmx/playmarket/internal/lock"
	"github.com/atmx/playmarket/internal/metrics"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/settlement"
	"github.com/atmx/playmarket/internal/store"
	"github.com/atmx/playmarket/internal/trade"
)

// Options select the pieces only some binaries need.
type Options struct {
	// Hub creates a WebSocket hub and routes events to it.
	Hub bool
}

// App is a wired ledger.
type App struct {
	Config     *config.Config
	Store      store.Store
	Postgres   *store.PostgresStore // nil on the memory store
	Locker     lock.Locker
	Events     events.Publisher
	Bus        *events.RedisBus // nil without Redis
	Hub        *trade.WSHub     // nil unless Options.Hub
	Trades     *trade.Engine
	Settlement *settlement.Engine
	Accounts   *account.Service
	Exporter   *archive.Exporter // nil unless an archive bucket is set
	Defaults   trade.MarketDefaults

	closers []func()
}

// New connects every configured backend. On error, whatever was already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	liquidity, err := cfg.Market.DefaultLiquidityMicros()
	if err != nil {
		return nil, fmt.Errorf("app: default liquidity: %w", err)
	}
	starting, err := cfg.Market.StartingBalanceMicros()
	if err != nil {
		return nil, fmt.Errorf("app: starting balance: %w", err)
	}
	a.Defaults = trade.MarketDefaults{Liquidity: liquidity, FeeBps: cfg.Market.DefaultFeeBps}

	// --- Initialize store ---
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.Postgres = store.NewPostgresStore(pool)
		if cfg.Database.RunMigrations {
			if err := a.Postgres.RunMigrations(ctx); err != nil {
				return nil, err
			}
		}
		a.Store = a.Postgres
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		a.Store = store.NewMemoryStore()
	}

	// --- Redis: read cache, market lock, event bus ---
	var sinks events.Fanout
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("app: invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}

		a.Store = store.NewCachedStore(a.Store, rdb, cfg.Redis.CacheTTL.Duration)
		a.Locker = lock.NewRedis(rdb)
		a.Bus = events.NewRedisBus(rdb, cfg.Redis.EventsChannel)
		sinks = append(sinks, a.Bus)
		slog.Info("Redis cache, lock and event bus enabled")
	} else {
		a.Locker = lock.NewLocal()
	}

	if opts.Hub {
		a.Hub = trade.NewWSHub()
		// with a bus the hub is fed by the relay, so every instance sees
		// every event exactly once
		if a.Bus == nil {
			sinks = append(sinks, a.Hub)
		}
	}
	switch len(sinks) {
	case 0:
		a.Events = events.Discard{}
	case 1:
		a.Events = sinks[0]
	default:
		a.Events = sinks
	}

	// --- Engines ---
	a.Trades = trade.NewEngine(a.Store, a.Locker, a.Events, trade.Config{
		MaxTxAttempts: cfg.Engine.MaxTxAttempts,
		LockTTL:       cfg.Engine.LockTTL.Duration,
		LockWait:      cfg.Engine.LockWait.Duration,
	})
	a.Settlement = settlement.NewEngine(a.Store, a.Locker, a.Events, settlement.Config{
		MaxTxAttempts: cfg.Engine.MaxTxAttempts,
		LockTTL:       cfg.Engine.LockTTL.Duration,
		LockWait:      cfg.Engine.LockWait.Duration,
	})
	a.Accounts = account.NewService(a.Store, starting, cfg.Engine.MaxTxAttempts)

	// --- Archive ---
	if cfg.Archive.Enabled() {
		w, err := archive.NewS3Writer(ctx, archive.S3Config{
			Bucket:         cfg.Archive.Bucket,
			Region:         cfg.Archive.Region,
			Endpoint:       cfg.Archive.Endpoint,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		a.Exporter = archive.NewExporter(w, a.Store, cfg.Archive.Prefix)
		slog.Info("trade log archive enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}

	return a, nil
}

// HTTPService returns the HTTP adapter over this app.
func (a *App) HTTPService() *trade.Service {
	return trade.NewService(a.Trades, a.Accounts, a.Store, a.Hub, a.Defaults)
}

// SyncGauges sets gauges that describe stored state rather than events,
// so a restarted process reports the right open-market count.
func (a *App) SyncGauges(ctx context.Context) error {
	open, err := a.Store.ListMarkets(ctx, model.StatusOpen)
	if err != nil {
		return err
	}
	metrics.ActiveMarkets.Set(float64(len(open)))
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
