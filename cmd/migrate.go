package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/output"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the SQLite database file if it does not exist.`,
		Action: func(ctx *cli.Context) error {
			return withStore(ctx, func(db *database.DB) error {
				output.Success(ctx.App.Writer, "%s database is up to date", db.DatabaseType())
				return nil
			})
		},
	}
}
