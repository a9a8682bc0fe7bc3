// Package main is the entry point for the BoxVault catalog migration tool.
// It applies the embedded goose migrations of the configured driver.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prn-tf/boxvault/internal/app"
	"github.com/prn-tf/boxvault/internal/config"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "boxvault-migrate",
		Short:        "Manage the BoxVault catalog schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	withDB := func(fn func(ctx context.Context, db app.Database) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg.Logging, os.Stderr)

			db, err := app.OpenDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd.Context(), db)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: withDB(func(ctx context.Context, db app.Database) error {
				return db.Migrate(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: withDB(func(ctx context.Context, db app.Database) error {
				return db.MigrateDown(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			RunE: withDB(func(ctx context.Context, db app.Database) error {
				version, err := db.SchemaVersion(ctx)
				if err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
				fmt.Printf("Schema version: %d\n", version)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("BoxVault Migration Tool\n")
				fmt.Printf("Version: %s\n", Version)
				fmt.Printf("Build Time: %s\n", BuildTime)
				fmt.Printf("Git Commit: %s\n", GitCommit)
			},
		},
	)

	return root
}
