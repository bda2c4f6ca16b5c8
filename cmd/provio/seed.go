package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provio-systems/provio/internal/config"
	"github.com/provio-systems/provio/internal/namepool"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/pkg/logging"
)

var seedNamesCmd = &cobra.Command{
	Use:   "seed-names <corpus.yaml>",
	Short: "Import a name corpus into the name pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

		var store repository.NamePoolStore
		if cfg.Database.Type == "postgres" {
			db, err := repository.NewPostgresStore(context.Background(), cfg.Database.Postgres.ConnString())
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer db.Close()
			store = db
		} else {
			return fmt.Errorf("seed-names requires database.type=postgres, got %q", cfg.Database.Type)
		}

		pool := namepool.New(store, logger)
		report, err := pool.ImportCorpus(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("submitted=%d inserted=%d duplicates=%d invalid=%d\n",
			report.Submitted, report.Inserted, report.Duplicates, report.Invalid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedNamesCmd)
}
