package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"CatalogScanner/internal/app"
	"CatalogScanner/internal/config"
	"CatalogScanner/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "catalogscanner",
	Short:         "catalogscanner keeps a product catalog enriched with Worten prices and mirrored to a spreadsheet.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads config, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(a *app.Application, log *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}()

	return fn(application, logger)
}
