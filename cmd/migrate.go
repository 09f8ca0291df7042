package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-catalog/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog and extent schemas",
	Long:  "Creates the packages table and applies pending extent migrations for the configured store driver.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd.Context(), cfg)
	},
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate("migrate"); err != nil {
		return err
	}

	env, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Catalog.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate catalog")
	}
	if err := env.Extents.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate extents")
	}

	zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
