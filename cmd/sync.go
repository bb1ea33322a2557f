package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/config"
	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/output"
	"github.com/bryan-buckman/rssdash/internal/rss"
)

func syncCmd() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch every feed in the source list once",
		Description: `Fetches each feed, stores new and updated articles and then removes
feeds (and their articles) that are no longer in the source list.

A failing feed does not stop the others. The command fails only when every
feed failed. Interrupting it stops between feeds and skips the cleanup.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Feeds fetched in parallel (0 = database default)",
				EnvVars: []string{"RSSDASH_CONCURRENCY"},
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only print the summary",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg := *appConfig(ctx)
			if ctx.IsSet("concurrency") {
				cfg.Sync.Concurrency = ctx.Int("concurrency")
			}
			sources, err := config.LoadSources(cfg.Sync.Sources)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := ctx.App.Writer
			var opts []rss.SyncOption
			if !ctx.Bool("quiet") && !ctx.Bool("json") {
				opts = append(opts, rss.WithProgress(func(done, total int, src model.FeedSource, err error) {
					output.Progress(w, done, total, src, err)
				}))
			}

			return withStore(ctx, func(db *database.DB) error {
				result, err := newSyncer(&cfg, db, opts...).SyncAll(sigCtx, sources)
				if ctx.Bool("json") {
					if jerr := output.JSON(w, result); jerr != nil {
						return jerr
					}
				} else {
					output.SyncSummary(w, result)
				}
				if err != nil {
					return err
				}
				if result.AllFailed() {
					return cli.Exit("", 1)
				}
				return nil
			})
		},
	}
}
