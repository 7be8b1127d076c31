package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
)

var syncVerify bool

func init() {
	syncCmd.Flags().BoolVar(&syncVerify, "verify", false, "Compare the mirror with the catalog instead of rewriting it.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--verify]",
	Short: "Regenerates the spreadsheet mirror from the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app.Application, log *slog.Logger) error {
			if !syncVerify {
				if err := a.Mediator.Sync(cmd.Context()); err != nil {
					return err
				}
				log.Info("mirror regenerated")
				return nil
			}

			diff, err := a.Mediator.Verify(cmd.Context())
			if err != nil {
				return err
			}
			renderDiff(cmd.OutOrStdout(), diff)
			if !diff.Empty() {
				return fmt.Errorf("mirror out of date: run sync")
			}
			return nil
		})
	},
}
