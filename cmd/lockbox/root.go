package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/crypto"
	"github.com/TheMichaelB/lockbox/internal/events"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/services/users"
	"github.com/TheMichaelB/lockbox/internal/services/vault"
	"github.com/TheMichaelB/lockbox/internal/storage"
)

// version is set at build time.
var version = "dev"

var (
	cfgFile    string
	userID     string
	jsonOutput bool
	verbose    bool

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "Password-protected encrypted file vault",
	Long: `Lockbox stores files encrypted with a per-file password and keeps an
audit trail of every upload, download, view and deletion.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./lockbox.yaml, ~/.config/lockbox/lockbox.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "",
		"Acting user (default: $LOCKBOX_USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fail(fmt.Errorf("configuration error: %w", err))
	}

	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	if used := loader.ConfigFileUsed(); used != "" {
		logger.WithField("path", used).Debug("Loaded config file")
	}

	if userID == "" {
		userID = os.Getenv(config.EnvPrefix + "_USER")
	}

	return nil
}

// app bundles the services a command needs.
type app struct {
	store *metadata.SQLStore
	vault *vault.Service
	users *users.Service
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close database")
	}
}

// openApp connects the stores and builds the services.
func openApp(ctx context.Context) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := metadata.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &app{
		store: store,
		vault: vault.NewService(store, blobs, crypto.NewProvider(), logger,
			vault.WithMinPasswordLength(cfg.Vault.MinPasswordLength),
			vault.WithMaxFileSize(cfg.Storage.MaxFileSize),
		),
		users: users.NewService(store, blobs, logger),
	}, nil
}

// requireUser returns the acting user or an error telling how to set one.
func requireUser() (string, error) {
	if userID == "" {
		return "", fmt.Errorf("no acting user: pass --user or set %s_USER", config.EnvPrefix)
	}
	return userID, nil
}

// withUser opens the app, ensures the acting user's profile and runs fn.
func withUser(ctx context.Context, fn func(a *app, user string) error) error {
	user, err := requireUser()
	if err != nil {
		return err
	}

	ctx = events.WithLogger(ctx, logger)
	ctx = events.WithRequestID(events.WithUserID(ctx, user), uuid.NewString())
	events.FromContext(ctx).Debug("Running command")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.users.EnsureProfile(ctx, user); err != nil {
		return err
	}

	if err := fn(a, user); err != nil {
		events.FromContext(ctx).WithError(err).Debug("Command failed")
		return err
	}
	return nil
}
