package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the REST API and, when configured, periodic scrapes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app.Application, _ *slog.Logger) error {
			return a.Serve(cmd.Context())
		})
	},
}
