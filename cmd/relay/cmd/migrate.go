package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/ledger/postgres"
	"github.com/nfrund/relay/internal/ledger/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ledger schema migrations",
	Long: `Applies pending schema migrations for the sqlite and postgres ledger drivers.
Other drivers need no schema and are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		switch cfg.LedgerDriver {
		case config.DriverSQLite:
			err = sqlite.Migrate(cfg.LedgerDSN)
		case config.DriverPostgres:
			err = postgres.RunMigrations(cfg.LedgerDSN)
		default:
			logger.Info("Ledger driver has no schema to migrate", "driver", cfg.LedgerDriver)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate %s ledger: %w", cfg.LedgerDriver, err)
		}

		logger.Info("Ledger schema is up to date", "driver", cfg.LedgerDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
