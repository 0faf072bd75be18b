// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/opentablerpg/otrpg/internal/store"
)

// migrator is the subset of *store.Migrator used by the migrate commands.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back, or inspect the PostgreSQL schema migrations
embedded in this binary. The database URL comes from --database-url or
the DATABASE_URL environment variable.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")

	withMigrator := func(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(databaseURL, os.Getenv)
			if err != nil {
				return err
			}
			m, err := newMigrator(url)
			if err != nil {
				return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations applied")
			return printStatus(cmd, m)
		}),
	}

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the most recent migration, or --steps N of them.
--all rolls back everything and drops all data.`,
		Args: cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if all {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			}
			if steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
			}
			if err := m.Steps(-steps); err != nil {
				return err
			}
			cmd.Printf("Rolled back %d migration(s)\n", steps)
			return printStatus(cmd, m)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			return printStatus(cmd, m)
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as the current schema version and clear the dirty
flag. Use this only to recover from a failed migration after repairing
the schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Schema version forced to %d\n", v)
			return nil
		}),
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

func resolveDatabaseURL(flagValue string, getenv func(string) string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if url := getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").With("key", "database.url").
		Errorf("--database-url or DATABASE_URL is required")
}

// parseForceVersion accepts a schema version; -1 means no version.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	if v < -1 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be -1 or greater")
	}
	return v, nil
}

func printStatus(cmd *cobra.Command, m migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	switch {
	case st.Version == 0:
		cmd.Println("Current version: none")
	case st.Name != "":
		cmd.Printf("Current version: %d (%s)\n", st.Version, st.Name)
	default:
		cmd.Printf("Current version: %d\n", st.Version)
	}
	if st.Dirty {
		cmd.Println("Schema is DIRTY: repair it, then run 'otrpg migrate force VERSION'")
	}

	if len(st.Pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations: %d\n", len(st.Pending))
	for _, v := range st.Pending {
		name, err := store.MigrationName(v)
		if err != nil {
			return err
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}
