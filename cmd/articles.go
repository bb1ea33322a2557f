package cmd

import (
	"strconv"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/rssdash/internal/content"
	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/output"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print JSON instead of text"}
}

func folderFlag() cli.Flag {
	return &cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Only articles in this folder (empty for none)"}
}

// folderFilter returns the folder flag as a filter; unset means any folder.
func folderFilter(ctx *cli.Context) *string {
	if !ctx.IsSet("folder") {
		return nil
	}
	return lo.ToPtr(ctx.String("folder"))
}

func articlesCmd() *cli.Command {
	return &cli.Command{
		Name:    "articles",
		Aliases: []string{"ls"},
		Usage:   "List stored articles",
		Flags: []cli.Flag{
			folderFlag(),
			&cli.StringFlag{Name: "read", Usage: "Filter by read state (true or false)"},
			&cli.BoolFlag{Name: "unread", Aliases: []string{"u"}, Usage: "Only unread articles"},
			&cli.BoolFlag{Name: "favorites", Usage: "Only favorite articles"},
			&cli.StringFlag{Name: "feed", Usage: "Only articles of this feed url"},
			&cli.StringFlag{Name: "order", Aliases: []string{"o"}, Usage: "newest, oldest or random", Value: string(model.OrderNewest)},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of articles (0 = all)"},
			jsonFlag(),
		},
		Action: func(ctx *cli.Context) error {
			q := model.ArticleQuery{Folder: folderFilter(ctx)}
			order, err := model.ParseOrder(ctx.String("order"))
			if err != nil {
				return err
			}
			q.OrderBy = order
			if ctx.Bool("unread") {
				q.IsRead = lo.ToPtr(false)
			} else if raw := ctx.String("read"); raw != "" {
				read, err := strconv.ParseBool(raw)
				if err != nil {
					return model.Errorf(model.EINVALID, "invalid read filter %q", raw)
				}
				q.IsRead = &read
			}

			return withStore(ctx, func(db *database.DB) error {
				var items []model.Article
				var err error
				switch {
				case ctx.Bool("favorites"):
					items, err = db.GetFavoriteItems(ctx.Context)
				case ctx.IsSet("feed"):
					items, err = db.GetItemsByFeedURL(ctx.Context, ctx.String("feed"))
				default:
					items, err = db.GetArticlesByOptions(ctx.Context, q)
				}
				if err != nil {
					return err
				}
				if n := ctx.Int("limit"); n > 0 && len(items) > n {
					items = items[:n]
				}
				if ctx.Bool("json") {
					return output.JSON(ctx.App.Writer, items)
				}
				output.Articles(ctx.App.Writer, items)
				return nil
			})
		},
	}
}

func readCmd() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Show an article and mark it as read",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "keep-unread", Usage: "Do not mark the article as read"},
			&cli.IntFlag{Name: "width", Usage: "Wrap width (0 = terminal width)"},
			jsonFlag(),
		},
		Action: func(ctx *cli.Context) error {
			id := ctx.Args().First()
			if id == "" {
				return model.Errorf(model.EINVALID, "article id is required")
			}
			return withStore(ctx, func(db *database.DB) error {
				item, err := db.GetItemByID(ctx.Context, id)
				if err != nil {
					return err
				}
				if !ctx.Bool("keep-unread") && !item.IsRead {
					if err := db.MarkItemAsRead(ctx.Context, id); err != nil {
						return err
					}
					item.IsRead = true
				}

				blocks := content.Decompose(item.Content)
				if ctx.Bool("json") {
					return output.JSON(ctx.App.Writer, map[string]interface{}{
						"article": item,
						"blocks":  blocks,
						"toc":     content.TableOfContents(blocks),
					})
				}
				return output.Article(ctx.App.Writer, *item, blocks, ctx.Int("width"))
			})
		},
	}
}

func randomCmd() *cli.Command {
	return &cli.Command{
		Name:  "random",
		Usage: "Pick a random article",
		Flags: []cli.Flag{folderFlag(), jsonFlag()},
		Action: func(ctx *cli.Context) error {
			return withStore(ctx, func(db *database.DB) error {
				item, err := db.GetRandomItem(ctx.Context, folderFilter(ctx))
				if err != nil {
					return err
				}
				if ctx.Bool("json") {
					return output.JSON(ctx.App.Writer, item)
				}
				output.Articles(ctx.App.Writer, []model.Article{*item})
				return nil
			})
		},
	}
}

func favoriteCmd() *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Aliases:   []string{"fav"},
		Usage:     "Toggle the favorite flag of an article",
		ArgsUsage: "<id>",
		Action: func(ctx *cli.Context) error {
			id := ctx.Args().First()
			if id == "" {
				return model.Errorf(model.EINVALID, "article id is required")
			}
			return withStore(ctx, func(db *database.DB) error {
				fav, err := db.ToggleFavorite(ctx.Context, id)
				if err != nil {
					return err
				}
				if fav {
					output.Success(ctx.App.Writer, "★ %s is now a favorite", id)
				} else {
					output.Success(ctx.App.Writer, "%s is no longer a favorite", id)
				}
				return nil
			})
		},
	}
}

func markReadCmd() *cli.Command {
	return &cli.Command{
		Name:      "mark-read",
		Usage:     "Mark articles as read",
		ArgsUsage: "<id>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "unread", Usage: "Mark as unread instead"},
		},
		Action: func(ctx *cli.Context) error {
			ids := ctx.Args().Slice()
			if len(ids) == 0 {
				return model.Errorf(model.EINVALID, "at least one article id is required")
			}
			return withStore(ctx, func(db *database.DB) error {
				if ctx.Bool("unread") {
					for _, id := range ids {
						if err := db.SetReadStatus(ctx.Context, id, false); err != nil {
							return err
						}
					}
					output.Success(ctx.App.Writer, "Marked %d articles unread", len(ids))
					return nil
				}
				n, err := db.MarkItemsRead(ctx.Context, ids)
				if err != nil {
					return err
				}
				output.Success(ctx.App.Writer, "Marked %d articles read", n)
				return nil
			})
		},
	}
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show article counts per folder",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(ctx *cli.Context) error {
			return withStore(ctx, func(db *database.DB) error {
				stats, err := db.GetItemStatsByFolder(ctx.Context)
				if err != nil {
					return err
				}
				if ctx.Bool("json") {
					return output.JSON(ctx.App.Writer, stats)
				}
				output.FolderStats(ctx.App.Writer, stats)
				return nil
			})
		},
	}
}
