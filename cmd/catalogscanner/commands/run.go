package commands

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
)

var (
	runImportOnly bool
	runScrapeOnly bool
)

func init() {
	runCmd.Flags().BoolVar(&runImportOnly, "import-only", false, "Only import the input spreadsheet.")
	runCmd.Flags().BoolVar(&runScrapeOnly, "scrape-only", false, "Skip the import step.")
	addScrapeFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Imports the input spreadsheet, scrapes the catalog and refreshes the mirror.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if runImportOnly && runScrapeOnly {
			return errors.New("--import-only and --scrape-only are exclusive")
		}

		return withApp(cmd, func(a *app.Application, log *slog.Logger) error {
			if !runScrapeOnly {
				report, err := a.Importer.Import(cmd.Context())
				if err != nil {
					return err
				}
				renderImport(cmd.OutOrStdout(), report)
			}
			if !runImportOnly {
				if err := runScrape(cmd, a, log); err != nil {
					return err
				}
			}
			if err := a.Mediator.Sync(cmd.Context()); err != nil {
				return err
			}
			log.Info("mirror refreshed")
			return nil
		})
	},
}
