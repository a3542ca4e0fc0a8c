package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matrixise/walletd/internal/config"
	"github.com/matrixise/walletd/internal/logger"
	"github.com/matrixise/walletd/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage audit database migrations",
	Long:  `Run, rollback, or check the status of the audit trail migrations. Requires DATABASE_URL.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	dsn, err := config.RequireDatabaseURL()
	if err != nil {
		return err
	}

	applied, err := storage.RunMigrations(cmd.Context(), dsn)
	if err != nil {
		slog.Error("Migration failed", "error", err)
		return err
	}

	slog.Info("Migrations applied successfully", "applied", applied)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	dsn, err := config.RequireDatabaseURL()
	if err != nil {
		return err
	}

	if err := storage.MigrateDown(cmd.Context(), dsn); err != nil {
		slog.Error("Rollback failed", "error", err)
		return err
	}

	slog.Info("Migration rolled back successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	dsn, err := config.RequireDatabaseURL()
	if err != nil {
		return err
	}

	statuses, err := storage.MigrateStatus(cmd.Context(), dsn)
	if err != nil {
		slog.Error("Failed to get migration status", "error", err)
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Path)
	}
	return w.Flush()
}
