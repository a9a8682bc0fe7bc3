// Package main is the entry point for the BoxVault admin CLI.
// It manages catalog entries, memberships, service accounts and session tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prn-tf/boxvault/internal/app"
	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/pkg/crypto"
	"github.com/prn-tf/boxvault/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "boxvault-admin",
		Short:        "BoxVault administration",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newSecretCommand(),
		newCatalogCommand(),
		newMemberCommand(),
		newServiceAccountCommand(),
		newTokenCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("BoxVault Admin\n")
				fmt.Printf("Version: %s\n", Version)
				fmt.Printf("Build Time: %s\n", BuildTime)
				fmt.Printf("Git Commit: %s\n", GitCommit)
			},
		},
	)
	return root
}

// withCatalog opens the configured database and runs fn against a catalog service.
func withCatalog(ctx context.Context, fn func(ctx context.Context, catalog *service.CatalogService) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Logging, os.Stderr)

	db, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, service.NewCatalogService(*db.Repositories(), logger))
}

func newSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the token master secret",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new auth.token_secret value",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	})
	return cmd
}

func newCatalogCommand() *cobra.Command {
	var (
		addr        domain.Address
		ownerID     int64
		public      bool
		description string
		defaultArch bool
	)

	add := &cobra.Command{
		Use:   "add",
		Short: "Create an organization/box/version/provider/architecture chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, catalog *service.CatalogService) error {
				in := service.EnsureChainInput{
					Address:     addr,
					OwnerID:     ownerID,
					Public:      public,
					Description: description,
				}
				if cmd.Flags().Changed("default") {
					in.DefaultArchitecture = &defaultArch
				}
				bound, err := catalog.EnsureChain(ctx, in)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s (architecture id %d)\n", bound.Address, bound.Architecture.ID)
				return nil
			})
		},
	}
	f := add.Flags()
	f.StringVar(&addr.Organization, "org", "", "organization name")
	f.StringVar(&addr.Box, "box", "", "box name")
	f.StringVar(&addr.Version, "version", "", "version number")
	f.StringVar(&addr.Provider, "provider", "", "provider name")
	f.StringVar(&addr.Architecture, "arch", "", "architecture name")
	f.Int64Var(&ownerID, "owner", 0, "owning user id")
	f.BoolVar(&public, "public", false, "make the box public")
	f.StringVar(&description, "description", "", "box description")
	f.BoolVar(&defaultArch, "default", false, "mark the architecture as the provider default")
	for _, name := range []string{"org", "box", "version", "provider", "arch"} {
		_ = add.MarkFlagRequired(name)
	}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage catalog hierarchy",
	}
	cmd.AddCommand(add)
	return cmd
}

func newMemberCommand() *cobra.Command {
	var (
		org    string
		userID int64
		role   string
	)

	add := &cobra.Command{
		Use:   "add",
		Short: "Grant a user a role in an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, catalog *service.CatalogService) error {
				if err := catalog.AddMember(ctx, org, userID, domain.Role(role)); err != nil {
					return err
				}
				fmt.Printf("User %d is now %s of %s\n", userID, role, org)
				return nil
			})
		},
	}
	add.Flags().StringVar(&org, "org", "", "organization name")
	add.Flags().Int64Var(&userID, "user-id", 0, "user id")
	add.Flags().StringVar(&role, "role", string(domain.RoleUser), "role: user, moderator or admin")
	_ = add.MarkFlagRequired("org")
	_ = add.MarkFlagRequired("user-id")

	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage organization memberships",
	}
	cmd.AddCommand(add)
	return cmd
}

func newServiceAccountCommand() *cobra.Command {
	var (
		org  string
		name string
		ttl  time.Duration
	)

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a service account for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), func(ctx context.Context, catalog *service.CatalogService) error {
				sa, err := catalog.CreateServiceAccount(ctx, org, name, ttl)
				if err != nil {
					return err
				}
				fmt.Printf("Service account ID: %d\n", sa.ID)
				if sa.ExpiresAt != nil {
					fmt.Printf("Expires at: %s\n", sa.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	create.Flags().StringVar(&org, "org", "", "organization name")
	create.Flags().StringVar(&name, "name", "", "service account name")
	create.Flags().DurationVar(&ttl, "ttl", 0, "lifetime; 0 never expires")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("name")

	cmd := &cobra.Command{
		Use:   "service-account",
		Short: "Manage service accounts",
	}
	cmd.AddCommand(create)
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		id             int64
		serviceAccount bool
		ttl            time.Duration
	)

	session := &cobra.Command{
		Use:   "session",
		Short: "Issue a session token for a user or service account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			keys, err := auth.NewKeys(cfg.Auth.TokenSecret)
			if err != nil {
				return err
			}
			token, err := auth.NewSessionManager(keys.Session).Issue(auth.Identity{
				ID:               id,
				IsServiceAccount: serviceAccount,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	session.Flags().Int64Var(&id, "user-id", 0, "user id, or service account id with --service-account")
	session.Flags().BoolVar(&serviceAccount, "service-account", false, "issue for a service account")
	session.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = session.MarkFlagRequired("user-id")

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens",
	}
	cmd.AddCommand(session)
	return cmd
}
