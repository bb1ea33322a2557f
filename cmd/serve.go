package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/config"
	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/rss"
	"github.com/bryan-buckman/rssdash/internal/server"
)

const shutdownTimeout = 30 * time.Second

// serveCmd starts the HTTP API and the background poller.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and poll feeds in the background",
		Description: `Starts the HTTP server on the configured address and syncs every
feed in the source list right away and then on the poll interval
(at least 15 minutes).`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Address to listen on",
				EnvVars: []string{"RSSDASH_ADDR"},
			},
			&cli.BoolFlag{
				Name:    "no-poll",
				Usage:   "Do not sync feeds in the background",
				EnvVars: []string{"RSSDASH_NO_POLL"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg := appConfig(ctx)
			addr := cfg.Server.Addr
			if ctx.IsSet("addr") {
				addr = ctx.String("addr")
			}

			return withStore(ctx, func(db *database.DB) error {
				sources := config.SourcePath(cfg.Sync.Sources)
				syncer := newSyncer(cfg, db)

				var opts []server.Option
				if !ctx.Bool("no-poll") {
					poller := rss.NewPoller(syncer, sources.Load, cfg.Sync.PollInterval)
					log.Infof("Polling %s every %s", cfg.Sync.Sources, poller.Interval())
					opts = append(opts, server.WithPoller(poller))
				}
				srv := server.New(db, syncer, sources, opts...)

				sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()

				errc := make(chan error, 1)
				go func() {
					errc <- srv.Start(addr)
				}()

				select {
				case err := <-errc:
					return err
				case <-sigCtx.Done():
				}

				log.Info("Gracefully shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
}
