package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithoutMigrations())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		applied, err := store.Migrate(ctx)
		if err != nil {
			return err
		}
		logger.Get().Info(ctx, "migrations applied", logger.String("db_driver", cfg.DBDriver),
			logger.Int("count", len(applied)), logger.Any("versions", applied))
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
		return nil
	},
}
