package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/config"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/opml"
	"github.com/bryan-buckman/rssdash/internal/output"
)

func importOPMLCmd() *cli.Command {
	return &cli.Command{
		Name:      "import-opml",
		Usage:     "Add the feeds of an OPML file to the source list",
		ArgsUsage: "<file>",
		Description: `Feeds already in the source list are skipped. Nested OPML folders
become folder paths joined with "/". The source list is created if needed.`,
		Action: func(ctx *cli.Context) error {
			path := ctx.Args().First()
			if path == "" {
				return model.Errorf(model.EINVALID, "opml file is required")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			imported, err := opml.Parse(f)
			if err != nil {
				return err
			}

			target := appConfig(ctx).Sync.Sources
			existing, err := config.LoadSources(target)
			if err != nil && !model.IsNotFound(err) {
				return err
			}
			merged, added := config.MergeSources(existing, imported)
			if err := config.SaveSources(target, merged); err != nil {
				return err
			}
			output.Success(ctx.App.Writer, "Imported %d of %d feeds into %s", added, len(imported), target)
			return nil
		},
	}
}

func exportOPMLCmd() *cli.Command {
	return &cli.Command{
		Name:  "export-opml",
		Usage: "Write the source list as OPML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (default stdout)",
			},
		},
		Action: func(ctx *cli.Context) error {
			sources, err := config.LoadSources(appConfig(ctx).Sync.Sources)
			if err != nil {
				return err
			}
			data, err := opml.Export(config.ExportTitle, sources)
			if err != nil {
				return err
			}
			if out := ctx.String("output"); out != "" {
				return os.WriteFile(out, data, 0o644)
			}
			_, err = ctx.App.Writer.Write(append(data, '\n'))
			return err
		},
	}
}
