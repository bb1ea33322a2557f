package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/config"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "rssdash",
		Usage: "A local-first RSS and Atom reader",
		Description: `rssdash fetches the feeds listed in a source file, keeps their
		articles in a local SQLite or PostgreSQL database and serves them
		over a JSON API or on the command line.

		Read and favorite state is kept across re-fetches. Feeds removed
		from the source file are removed from the database on the next sync.

		Flags can generally be set via environment variables, e.g.:

		--database => RSSDASH_DATABASE=rssdash.db
		--sources => RSSDASH_SOURCES=feeds.json
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"RSSDASH_CONFIG"},
				Value:   "rssdash.toml",
			},
			&cli.StringFlag{
				Name:    "database-driver",
				Usage:   "Database driver, sqlite or postgres",
				EnvVars: []string{"RSSDASH_DATABASE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "SQLite file path or PostgreSQL connection string",
				EnvVars: []string{"RSSDASH_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "sources",
				Usage:   "Feed source list (.json, .yaml or .opml)",
				EnvVars: []string{"RSSDASH_SOURCES"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"RSSDASH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text or json)",
				EnvVars: []string{"RSSDASH_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			ctx.App.Metadata = map[string]interface{}{configKey: cfg}
			return cfg.Log.SetupLogging()
		},
		Commands: []*cli.Command{
			serveCmd(),
			syncCmd(),
			articlesCmd(),
			readCmd(),
			randomCmd(),
			favoriteCmd(),
			markReadCmd(),
			statsCmd(),
			importOPMLCmd(),
			exportOPMLCmd(),
			migrateCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

const configKey = "config"

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("database-driver") {
		cfg.Database.Driver = ctx.String("database-driver")
	}
	if ctx.IsSet("database") {
		cfg.Database.DSN = ctx.String("database")
	}
	if ctx.IsSet("sources") {
		cfg.Sync.Sources = ctx.String("sources")
	}
	if ctx.IsSet("log-level") {
		cfg.Log.Level = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		cfg.Log.Format = ctx.String("log-format")
	}
	return cfg, cfg.Validate()
}

// appConfig returns the configuration loaded before the command ran.
func appConfig(ctx *cli.Context) *config.Config {
	if cfg, ok := ctx.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
