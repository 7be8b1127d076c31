package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
	"CatalogScanner/internal/usecase"
)

var (
	scrapeLimit int
	scrapeDelay time.Duration
	scrapeIDs   []string
)

func init() {
	addScrapeFlags(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Scrape at most this many products (0 means all).")
	cmd.Flags().DurationVar(&scrapeDelay, "delay", 0, "Pause between products, e.g. 750ms. Unset uses the configured delay.")
	cmd.Flags().StringSliceVar(&scrapeIDs, "id", nil, "Scrape only these original IDs. Repeatable.")
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--limit N] [--delay 500ms] [--id X]...",
	Short: "Resolves catalog products on Worten and commits each result.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app.Application, log *slog.Logger) error {
			return runScrape(cmd, a, log)
		})
	},
}

// delayFlag returns the --delay value, or usecase.ConfiguredDelay when the
// flag was not given.
func delayFlag(cmd *cobra.Command) (time.Duration, error) {
	if !cmd.Flags().Changed("delay") {
		return usecase.ConfiguredDelay, nil
	}
	if scrapeDelay < 0 {
		return 0, fmt.Errorf("--delay must not be negative")
	}
	return scrapeDelay, nil
}

func runScrape(cmd *cobra.Command, a *app.Application, log *slog.Logger) error {
	delay, err := delayFlag(cmd)
	if err != nil {
		return err
	}
	sel := usecase.Selection{Limit: scrapeLimit, IDs: scrapeIDs}
	report, err := a.Scraper.ScrapeAll(cmd.Context(), sel, delay)
	if err != nil && !report.Interrupted {
		return err
	}
	if report.Selected == 0 {
		log.Warn("no products selected")
	}
	renderScrape(cmd.OutOrStdout(), report)
	if errors.Is(err, context.Canceled) {
		return errors.New("scrape interrupted")
	}
	return err
}
