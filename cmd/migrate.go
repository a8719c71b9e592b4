package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/subgate/internal/upgrade"
)

var migrationsDir string

// resolveMigrationsDir picks --migrations-dir, then $SUBGATE_MIGRATIONS_DIR,
// then ./migrations next to the executable.
func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("SUBGATE_MIGRATIONS_DIR"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+resolveMigrationsDir(), dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// withMigrator resolves the DSN, opens a migrator and closes it after fn.
func withMigrator(fn func(m *migrate.Migrate) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.IsManagedMode() || cfg.Database.PostgresDSN == "" {
		return errors.New("migrations apply to managed mode only: set SUBGATE_POSTGRES_DSN")
	}
	m, err := newMigrator(cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// currentVersion reports the applied version; a fresh database is version 0.
func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres registry schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: ./migrations)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate up: %w", err)
					}
					v, _, err := currentVersion(m)
					slog.Info("migration complete", "version", v)
					return err
				})
			},
		},
		migrateDownCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied and required schema versions",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					v, dirty, err := currentVersion(m)
					if err != nil {
						return fmt.Errorf("get version: %w", err)
					}
					fmt.Printf("applied: %d, required: %d, dirty: %v\n", v, upgrade.RequiredSchemaVersion, dirty)
					return nil
				})
			},
		},
		migrateStepCmd("goto <version>", "Migrate up or down to an exact version", func(m *migrate.Migrate, v int) error {
			return m.Migrate(uint(v))
		}),
		migrateStepCmd("force <version>", "Record a version without running migrations (clears dirty)", func(m *migrate.Migrate, v int) error {
			return m.Force(v)
		}),
	)
	return cmd
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate down: %w", err)
				}
				v, dirty, err := currentVersion(m)
				slog.Info("rollback complete", "version", v, "dirty", dirty)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

// migrateStepCmd builds a subcommand that takes a single version argument.
func migrateStepCmd(use, short string, apply func(m *migrate.Migrate, v int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := apply(m, v); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("%s %d: %w", cmd.Name(), v, err)
				}
				slog.Info("schema version set", "command", cmd.Name(), "version", v)
				return nil
			})
		},
	}
}
