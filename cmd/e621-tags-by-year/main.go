package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/counter"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/search"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/store"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/taglist"
)

const defaultOutput = "e621_tag_count.csv"

type options struct {
	concat      bool
	stdoutOnly  bool
	overwrite   bool
	pages       string
	outPath     string
	dbPath      string
	useHTTP     bool
	headful     bool
	lookback    int
	currentYear int
	scoreSeed   int
	maxAttempts int
	verbose     bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "e621-tags-by-year [flags] [tags]",
		Short: "Count how many e621 posts were made each year for one or more tags",
		Long: `Counts, for each given tag, how many posts were made in each of the
last N calendar years, and merges the results into a persisted table.
Tags already in the table are skipped unless overwriting is requested.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.concat, "concat", "c", false, "concatenate tags into one query instead of treating each separately")
	f.BoolVarP(&opts.stdoutOnly, "stdout-only", "o", false, "print to standard output only, no persistence")
	f.StringVarP(&opts.pages, "pages", "p", "", `query tags from pages X or X..Y of the tag listing sorted by total count`)
	f.BoolVarP(&opts.overwrite, "overwrite", "w", false, "overwrite tags already persisted")
	f.StringVar(&opts.outPath, "out", defaultOutput, "CSV output path")
	f.StringVar(&opts.dbPath, "db", "", "persist to a sqlite database at this path instead of CSV")
	f.BoolVar(&opts.useHTTP, "http", false, "fetch pages over plain HTTP instead of driving a browser")
	f.BoolVar(&opts.headful, "headful", false, "run a visible browser instead of headless")
	f.IntVar(&opts.lookback, "lookback", domain.DefaultLookback, "how many years back to count")
	f.IntVar(&opts.currentYear, "year", 0, "anchor year for offsets (default: current calendar year)")
	f.IntVar(&opts.scoreSeed, "score-seed", domain.DefaultScoreSeed, "bound and window seed for score partitioning")
	f.IntVar(&opts.maxAttempts, "max-attempts", 0, "maximum attempts per remote call (default: retry policy default)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log diagnostics")

	return cmd
}

func run(ctx context.Context, opts *options, args []string) error {
	logger := newLogger(opts.verbose)

	cfg := domain.Config{
		CurrentYear: opts.currentYear,
		Lookback:    opts.lookback,
		ScoreSeed:   opts.scoreSeed,
	}
	cfg.SetDefaults()

	rc := retry.DefaultConfig()
	if opts.maxAttempts > 0 {
		rc.MaxAttempts = opts.maxAttempts
	}

	// Validate the page range before anything talks to the network.
	var firstPage, lastPage int
	if opts.pages != "" {
		var err error
		firstPage, lastPage, err = taglist.ParseRange(opts.pages)
		if err != nil {
			return err
		}
	}

	var st store.Store
	if !opts.stdoutOnly {
		if opts.dbPath != "" {
			sq, err := store.NewSQLite(opts.dbPath)
			if err != nil {
				return err
			}
			st = sq
		} else {
			st = store.NewCSV(opts.outPath, logger)
		}
		defer st.Close()
	}

	client, err := newClient(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	queries := make([]string, 0, len(args))
	for _, a := range args {
		queries = append(queries, strings.ToLower(a))
	}
	if opts.pages != "" {
		fmt.Printf("Scraping tags from pages %d to %d...\n", firstPage, lastPage)
		names, err := taglist.Fetch(ctx, client, rc, firstPage, lastPage)
		if err != nil {
			return err
		}
		queries = append(queries, names...)
	}
	if queries, err = selectQueries(st, queries, opts.concat, opts.overwrite); err != nil {
		return err
	}

	if len(queries) == 0 {
		fmt.Println("Found zero tags to scrape posts for. Aborting.")
		return nil
	}
	fmt.Printf("Scraping yearly post count for %d tags...\n", len(queries))

	engine := counter.New(client, cfg, rc, logger)
	years := cfg.Years()

	var failed []string
	for _, tags := range queries {
		fmt.Printf("\n%s\n", tags)
		counts, err := engine.SweepTag(ctx, tags, func(year, count int) {
			fmt.Println(year, count)
		})
		if err != nil {
			var dre *counter.DegenerateRangeError
			if errors.As(err, &dre) {
				logger.Error("skipping tag: score axis could not isolate a countable window",
					"tags", tags, "window", dre.Clause)
				failed = append(failed, tags)
				continue
			}
			return err
		}

		// Persist only after every year of the tag resolved.
		if st != nil {
			if err := st.Upsert(domain.Record{Tag: tags, Counts: counts}, years); err != nil {
				return err
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not count %d of %d queries: %s",
			len(failed), len(queries), strings.Join(failed, ", "))
	}
	return nil
}

// selectQueries decides what actually gets counted. A concatenated
// query is always run, even when every tag in it is already persisted;
// separate tags pass through the known-tag filter.
func selectQueries(st store.Store, queries []string, concat, overwrite bool) ([]string, error) {
	if concat && len(queries) > 0 {
		return []string{strings.Join(queries, " ")}, nil
	}
	return store.FilterUnknown(st, queries, overwrite)
}

func newClient(ctx context.Context, opts *options, logger *slog.Logger) (search.Client, error) {
	if opts.useHTTP {
		return search.NewHTTP(search.HTTPConfig{Logger: logger}), nil
	}
	return search.NewBrowser(ctx, search.BrowserConfig{
		Headful: opts.headful,
		Logger:  logger,
	})
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
