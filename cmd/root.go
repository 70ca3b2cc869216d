package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadqual",
	Short: "Lead enrichment and qualification pipeline",
	Long:  "Plans lead batches, launches scoring workers, extracts structured facts from crawled websites via two-pass Claude scoring, and ranks acquisition targets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
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
