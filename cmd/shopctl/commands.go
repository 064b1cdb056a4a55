package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopclient/internal/engine"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/pkg/db"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
	"github.com/angelmondragon/shopclient/pkg/pagination"
)

func newRootCmd(open opener) *cobra.Command {
	var showMetrics bool
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Shop directory data client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print operation counters after the command")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		ctx := cmd.Context()
		a, err := open(ctx)
		if err != nil {
			return err
		}
		err = fn(ctx, a)
		if showMetrics {
			err = multierr.Append(err, printMetrics(cmd.OutOrStdout(), a))
		}
		return multierr.Append(err, a.Close())
	}

	root.AddCommand(
		newMigrateCmd(withApp),
		newSeedCmd(withApp),
		newStatsCmd(withApp),
		newShopsCmd(withApp),
		newHealthCmd(withApp),
	)
	return root
}

func newHealthCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the configured database and redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				backends := []struct {
					name   string
					pinger db.Pinger
				}{{name: "database"}, {name: "redis"}}
				if a.db != nil {
					backends[0].pinger = a.db
				}
				if a.redis != nil {
					backends[1].pinger = a.redis
				}

				var err error
				for _, b := range backends {
					if b.pinger == nil {
						fmt.Fprintf(out, "%s: not configured\n", b.name)
						continue
					}
					if pingErr := b.pinger.Ping(ctx); pingErr != nil {
						fmt.Fprintf(out, "%s: %v\n", b.name, pingErr)
						err = multierr.Append(err, pkgerrors.Wrap(pkgerrors.CodeInitialization, pingErr, b.name+" unreachable"))
						continue
					}
					fmt.Fprintf(out, "%s: ok\n", b.name)
				}
				return err
			})
		},
	}
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error

func newMigrateCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.db == nil {
					return pkgerrors.Newf(pkgerrors.CodeInitialization, "migrate needs a SQL driver, got %q", a.cfg.DB.Driver)
				}
				if err := a.db.AutoMigrate(ctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "migration failed")
				}
				a.logg.Info(ctx, "schema migrated")
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func newSeedCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample shops, brands, users and reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				summary, err := seed(ctx, a.client, a.passwords)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d brands, %d shops, %d users, %d reviews\n",
					summary.Brands, summary.Shops, summary.Users, summary.Reviews)
				return nil
			})
		},
	}
}

func newStatsCmd(withApp appRunner) *cobra.Command {
	var minReviews int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Average rating per shop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rows, err := shopRatings(ctx, a.client, minReviews)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SHOP\tREVIEWS\tAVG\tMIN\tMAX")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%.2f\t%d\t%d\n", r.Shop, r.Reviews, r.Average, r.Min, r.Max)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&minReviews, "min-reviews", 1, "Only shops with at least this many reviews")
	return cmd
}

func newShopsCmd(withApp appRunner) *cobra.Command {
	var q shopQuery
	cmd := &cobra.Command{
		Use:   "shops",
		Short: "List shops a page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				shops, next, err := listShops(ctx, a.client, q)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tBRANDS\tREVIEWS")
				for _, s := range shops {
					brands := make([]string, 0, len(s.Many("brands")))
					for _, b := range s.Many("brands") {
						brands = append(brands, b.String("name"))
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", s.Int("id"), s.String("name"), s.String("type"),
						strings.Join(brands, ", "), s.RelationCount("reviews"))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if next != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "next cursor: %s\n", next)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.Type, "type", "", "Only shops of this type")
	cmd.Flags().StringVar(&q.NamePrefix, "name", "", "Only shops whose name starts with this, any case")
	cmd.Flags().StringVar(&q.Brand, "brand", "", "Only shops carrying this brand")
	cmd.Flags().IntVar(&q.Limit, "limit", pagination.DefaultLimit, "Page size")
	cmd.Flags().StringVar(&q.Cursor, "cursor", "", "Cursor printed by the previous page")
	return cmd
}

type shopQuery struct {
	Type       string
	NamePrefix string
	Brand      string
	Limit      int
	Cursor     string
}

// listShops returns one page ordered by id and the cursor of the next page,
// empty on the last one. The cursor names the first row of the next page.
func listShops(ctx context.Context, client *engine.Client, q shopQuery) ([]query.Record, string, error) {
	limit := pagination.NormalizeLimit(q.Limit)

	var filters []query.Filter
	if q.Type != "" {
		filters = append(filters, query.Equals("type", q.Type))
	}
	if q.NamePrefix != "" {
		filters = append(filters, query.StartsWith("name", q.NamePrefix).Insensitive())
	}
	if q.Brand != "" {
		filters = append(filters, query.Some("brands", query.Equals("name", q.Brand)))
	}

	args := query.FindArgs{
		Where:   query.And(filters...),
		OrderBy: []query.OrderBy{query.OrderAsc("id")},
		Take:    query.Take(limit + 1),
		Select: &query.Selection{
			Include: map[string]*query.Nested{"brands": {OrderBy: []query.OrderBy{query.OrderAsc("name")}}},
			Count:   []string{"reviews"},
		},
	}
	if q.Cursor != "" {
		cursor, err := pagination.ParseCursor(q.Cursor)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		args.Cursor = query.UniqueWhere(cursor)
	}

	shops, err := client.Shop().FindMany(ctx, args)
	if err != nil {
		return nil, "", err
	}
	if len(shops) <= limit {
		return shops, "", nil
	}
	next, err := pagination.EncodeCursor(pagination.Cursor{"id": shops[limit].Int("id")})
	if err != nil {
		return nil, "", err
	}
	return shops[:limit], next, nil
}

type shopRating struct {
	Shop     string
	Reviews  int64
	Average  float64
	Min, Max int64
}

// shopRatings groups reviews by shop and keeps shops with at least
// minReviews of them, best average first.
func shopRatings(ctx context.Context, client *engine.Client, minReviews int) ([]shopRating, error) {
	groups, err := client.Review().GroupBy(ctx, query.GroupByArgs{
		By:      []string{"shopId"},
		Having:  query.Having(query.AggCount, query.Gte(query.CountAll, minReviews)),
		OrderBy: []query.OrderBy{query.OrderAsc("shopId")},
		Count:   []string{query.CountAll},
		Avg:     []string{"rating"},
		Min:     []string{"rating"},
		Max:     []string{"rating"},
	})
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.Int("shopId"))
	}
	shops, err := client.Shop().FindMany(ctx, query.FindArgs{
		Where:  query.In("id", ids...),
		Select: &query.Selection{Fields: []string{"id", "name"}},
	})
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(shops))
	for _, s := range shops {
		names[s.Int("id")] = s.String("name")
	}

	out := make([]shopRating, 0, len(groups))
	for _, g := range groups {
		out = append(out, shopRating{
			Shop:    names[g.Int("shopId")],
			Reviews: g.One("_count").Int(query.CountAll),
			Average: g.One("_avg").Float("rating"),
			Min:     g.One("_min").Int("rating"),
			Max:     g.One("_max").Int("rating"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average > out[j].Average })
	return out, nil
}

// printMetrics writes every counter sample gathered during the command.
func printMetrics(w io.Writer, a *app) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "%s{%s} %g\n", family.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
