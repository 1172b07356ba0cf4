package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/christmasair/ops-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ops-sync",
	Short: "ServiceTitan job reconciliation and metrics sync",
	Long:  "Pulls jobs, appointments, staffing, and payroll from ServiceTitan and reconciles them into canonical per-job records with labor metrics in Postgres.",
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
