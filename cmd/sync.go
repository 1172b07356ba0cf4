package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncRunType string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass against ServiceTitan",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.engine.Run(ctx, syncRunType)
		if err != nil {
			return err
		}

		zap.L().Info("sync complete",
			zap.String("run_id", sum.RunID),
			zap.Int("processed", sum.Processed),
			zap.Int("created", sum.Created),
			zap.Int("updated", sum.Updated))
		for _, msg := range sum.Errors {
			fmt.Fprintln(cmd.OutOrStdout(), msg)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncRunType, "run-type", "manual", "run type recorded in the run log (manual|scheduled)")
	rootCmd.AddCommand(syncCmd)
}
