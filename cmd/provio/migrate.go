package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/provio-systems/provio/internal/config"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Database.Type != "postgres" {
			return fmt.Errorf("migrations require database.type=postgres, got %q", cfg.Database.Type)
		}

		m, err := migrate.New("file://migrations", cfg.Database.Postgres.ConnString())
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}

		if migrateDown {
			err = m.Down()
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}

		version, dirty, verr := m.Version()
		if verr == nil {
			fmt.Printf("migration version %d (dirty=%v)\n", version, dirty)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back all migrations")
	rootCmd.AddCommand(migrateCmd)
}
