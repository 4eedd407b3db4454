package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/cms-admin/internal/config"
	"github.com/and161185/cms-admin/internal/migrate"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the admins schema (default: up)",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE:      runMigrate,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runMigrate needs only the DSN, so the rest of the config is not validated.
func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return err
	}
	if cfg.DSN == "" {
		return fmt.Errorf("dsn is required (or set %s)", config.EnvDSN)
	}

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}
	ctx := cmd.Context()
	switch action {
	case "up":
		err = migrate.Up(ctx, cfg.DSN)
	case "down":
		err = migrate.Down(ctx, cfg.DSN)
	case "status":
		err = migrate.Status(ctx, cfg.DSN)
	default:
		err = errors.New("unknown action")
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	cmd.Printf("migrate %s: ok\n", action)
	return nil
}
