package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seeds the catalog from the input spreadsheet. Existing IDs are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app.Application, _ *slog.Logger) error {
			report, err := a.Importer.Import(cmd.Context())
			if err != nil {
				return err
			}
			renderImport(cmd.OutOrStdout(), report)
			return nil
		})
	},
}
