package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/LexAlert/pkg/errors"
)

type migrateFlags struct {
	source string
}

func newMigrateCmd(deps Dependencies) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&f.source, "source", "", "migration directory (default: embedded migrations)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, f, func(m MigrationRunner) error {
					if err := m.Up(); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
		newMigrateDownCmd(deps, f),
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, f, func(m MigrationRunner) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.InvalidParam(fmt.Sprintf("invalid version %q", args[0]))
				}
				return withMigrator(cmd, deps, f, func(m MigrationRunner) error {
					if err := m.Force(version); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
	)
	return cmd
}

func newMigrateDownCmd(deps Dependencies, f *migrateFlags) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, f, func(m MigrationRunner) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func withMigrator(cmd *cobra.Command, deps Dependencies, f *migrateFlags, fn func(MigrationRunner) error) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg, err := cc.Config()
	if err != nil {
		return err
	}
	m, closeFn, err := deps.OpenMigrate(cfg, cc.Logger, f.source)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(m)
}

// MigrationStatus is the applied schema version.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("schema version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("schema version %d", s.Version)
}

func printMigrationStatus(cmd *cobra.Command, m MigrationRunner) error {
	version, dirty, err := m.Status()
	if err != nil {
		return err
	}
	return PrintResult(cmd, MigrationStatus{Version: version, Dirty: dirty})
}
