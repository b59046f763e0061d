package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		return db.Migrate(ctx, pool, logger)
	},
}
