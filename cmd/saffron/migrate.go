package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup; this command exists to do it
explicitly, or to report the schema version with --status.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "show the schema version without applying changes")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status {
		fmt.Fprintln(out, cli.RenderBox("Database", fmt.Sprintf(
			"Path:    %s\nCurrent: %d\nLatest:  %d", cfg.Database.Path, current, storage.ExpectedSchemaVersion)))
		return nil
	}

	slog.Info("Running database migrations", "database", cfg.Database.Path, "from_version", current)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database at schema version %d", storage.ExpectedSchemaVersion)))
	return nil
}
