package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/lockbox/internal/config"
	"github.com/TheMichaelB/lockbox/internal/metadata"
	"github.com/TheMichaelB/lockbox/internal/models"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create directories and apply database migrations",
	Example: `  lockbox init
  lockbox init --admin root --write-config lockbox.yaml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initAdmin       string
	initWriteConfig string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initAdmin, "admin", "",
		"Grant the admin role to this user")
	initCmd.Flags().StringVar(&initWriteConfig, "write-config", "",
		"Write an example config file to this path")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if initWriteConfig != "" {
		if _, err := os.Stat(initWriteConfig); err == nil {
			return fail(fmt.Errorf("config file %s already exists", initWriteConfig))
		}
		if err := config.SaveExample(initWriteConfig); err != nil {
			return fail(err)
		}
		printInfo("Wrote %s", initWriteConfig)
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	schema, err := metadata.SchemaVersion(ctx, a.store.DB())
	if err != nil {
		return fail(err)
	}

	if initAdmin != "" {
		if err := a.users.Grant(ctx, initAdmin, models.RoleAdmin); err != nil {
			return fail(err)
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":        true,
			"schema_version": schema,
			"database":       cfg.Database.Driver,
			"storage":        cfg.Storage.Backend,
			"admin":          initAdmin,
		})
		return nil
	}

	printSuccess("Lockbox ready (schema version %d, %s database, %s storage)",
		schema, cfg.Database.Driver, cfg.Storage.Backend)
	if initAdmin != "" {
		printInfo("%s is an admin", initAdmin)
	}
	return nil
}
