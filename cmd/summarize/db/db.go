package cmd

import (
	"fmt"

	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/db"
	"github.com/cozy-creator/summarize-server/internal/db/migrations"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

var Cmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the inference log database",
}

func init() {
	pflags := Cmd.PersistentFlags()
	pflags.String("db-driver", config.DefaultDBDriver, "Database driver (sqlite, pg)")
	pflags.String("db-dsn", config.DefaultDBDSN, "Database DSN (Connection URL or Path)")
	config.MapFlag(pflags, "db.driver", "db-driver")
	config.MapFlag(pflags, "db.dsn", "db-dsn")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate database",
		RunE: withMigrator(func(cmd *cobra.Command, migrator *migrate.Migrator) error {
			if err := migrator.Init(cmd.Context()); err != nil {
				return err
			}
			if err := migrator.Lock(cmd.Context()); err != nil {
				return err
			}
			defer migrator.Unlock(cmd.Context()) //nolint:errcheck

			group, err := migrator.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Printf("there are no new migrations to run (database is up to date)\n")
				return nil
			}
			fmt.Printf("migrated to %s\n", group)
			return nil
		}),
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "rollback the last migration group",
		RunE: withMigrator(func(cmd *cobra.Command, migrator *migrate.Migrator) error {
			if err := migrator.Lock(cmd.Context()); err != nil {
				return err
			}
			defer migrator.Unlock(cmd.Context()) //nolint:errcheck

			group, err := migrator.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Printf("there are no groups to roll back\n")
				return nil
			}
			fmt.Printf("rolled back %s\n", group)
			return nil
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of the migrations",
		RunE: withMigrator(func(cmd *cobra.Command, migrator *migrate.Migrator) error {
			status, err := migrator.MigrationsWithStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("migrations: %s\n", status)
			fmt.Printf("unapplied migrations: %s\n", status.Unapplied())
			return nil
		}),
	}

	Cmd.AddCommand(migrateCmd, rollbackCmd, statusCmd)
}

// withMigrator opens the database only when a subcommand actually runs.
func withMigrator(f func(cmd *cobra.Command, migrator *migrate.Migrator) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		driver, err := db.NewConnection(cmd.Context(), config.MustGetConfig().DB)
		if err != nil {
			return err
		}
		defer driver.Close()

		return f(cmd, migrate.NewMigrator(driver.GetDB(), migrations.Migrations))
	}
}
