package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/christmasair/ops-sync/internal/store"
)

var migrateSeedPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required")
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return err
		}
		defer st.Close()

		if err := store.Migrate(ctx, st.Pool()); err != nil {
			return err
		}

		if migrateSeedPath != "" {
			n, err := st.SeedTradeOverrides(ctx, migrateSeedPath)
			if err != nil {
				return err
			}
			zap.L().Info("trade overrides seeded",
				zap.String("file", migrateSeedPath), zap.Int("entries", n))
		}

		zap.L().Info("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSeedPath, "seed", "", "YAML file of business-unit trade overrides to seed")
	rootCmd.AddCommand(migrateCmd)
}
