package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/medmap-diagnosis-server/internal/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL schema migrations",
	}
	cmd.PersistentFlags().String("dir", "", "Path to migrations directory (default: database.migrations_path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newMigrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := runner.Up(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return printVersion(cmd, runner)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations (one by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}

			runner, err := newMigrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := runner.Steps(cmd.Context(), -steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			return printVersion(cmd, runner)
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}

			runner, err := newMigrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := runner.Force(version); err != nil {
				return err
			}
			return printVersion(cmd, runner)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newMigrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()
			return printVersion(cmd, runner)
		},
	})

	return cmd
}

func newMigrationRunner(cmd *cobra.Command) (*database.MigrationRunner, error) {
	logger, err := commandLogger(cmd)
	if err != nil {
		return nil, err
	}
	manager, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = manager.GetConfig().Database.MigrationsPath
	}
	return database.NewMigrationRunner(manager.GetDatabaseURL(), dir, logger)
}

func printVersion(cmd *cobra.Command, runner *database.MigrationRunner) error {
	version, dirty, err := runner.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		printf(cmd, "No migrations applied\n")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	printf(cmd, "Schema version %d (%s)\n", version, state)
	return nil
}
