package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/app"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "warrantyctl",
	Short: "Extract text and invoice fields from local documents",
	Long: `warrantyctl runs the WarrantyVault extraction pipeline against local files
and manages the extraction job ledger.

Configuration is read from the same environment variables as warrantyd
(OCR_*, DONUT_*, DB_URL, ...) and from WARRANTYVAULT_CONFIG when set.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// loadConfig reads and validates configuration, then builds a stderr logger.
func loadConfig() (*common.Config, *slog.Logger, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}
