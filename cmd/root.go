package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uralstat/realty-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "realty",
	Short: "Apartment listing ingestion for the Ufa property market",
	Long: `realty scrapes apartment listings from the Yandex Realty search for Ufa,
resolves each listing to a city district, and persists the results so that
repeated runs stay idempotent. Snapshots of the accumulated listings can be
exported as CSV, XLSX, or a model-training dataset.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
