package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/config"
	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/rss"
)

// openStore creates the configured store. The connection is opened lazily
// on first use.
func openStore(cfg *config.Config) (*database.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return database.NewSQLite(cfg.Database.DSN), nil
	case config.DriverPostgres:
		return database.NewPostgres(cfg.Database.DSN), nil
	}
	return nil, model.Errorf(model.EINVALID, "unknown database driver %q", cfg.Database.Driver)
}

// newSyncer wires a fetcher and syncer for store. A configured concurrency
// of 0 uses what the store supports.
func newSyncer(cfg *config.Config, store database.Store, opts ...rss.SyncOption) *rss.Syncer {
	fetcher := rss.NewFetcher(store,
		rss.WithTimeout(cfg.Sync.FetchTimeout),
		rss.WithUserAgent(cfg.Sync.UserAgent),
		rss.WithRateLimit(cfg.Sync.RateLimit),
	)
	concurrency := cfg.Sync.Concurrency
	if concurrency == 0 {
		concurrency = rss.DefaultConcurrency(store.SupportsHighConcurrency())
	}
	return rss.NewSyncer(fetcher, store, append([]rss.SyncOption{rss.WithConcurrency(concurrency)}, opts...)...)
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx *cli.Context, fn func(db *database.DB) error) error {
	db, err := openStore(appConfig(ctx))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Open(ctx.Context); err != nil {
		return err
	}
	return fn(db)
}
