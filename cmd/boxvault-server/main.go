// Package main is the entry point for the BoxVault server.
// BoxVault stores Vagrant box artifacts and serves them to the vagrant client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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
		Use:           "boxvault-server",
		Short:         "BoxVault box artifact storage and delivery gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./config.yaml, ./configs, /etc/boxvault)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("BoxVault Server\n")
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	})

	return root
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Logging, os.Stderr)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting BoxVault Server")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize server")
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
