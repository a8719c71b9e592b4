package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/subgate/internal/store/pg"
	"github.com/nextlevelbuilder/subgate/internal/upgrade"
)

// ErrUpgradeFailed is returned when upgrade cannot proceed.
var ErrUpgradeFailed = errors.New("upgrade cannot proceed")

func upgradeCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Bring the Postgres schema up to date",
		Long:  "Applies pending SQL migrations. Safe to run multiple times (idempotent).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status {
				return runUpgradeStatus()
			}
			return runUpgrade()
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show current upgrade status")
	return cmd
}

func runUpgradeStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  App version:     %s\n", Version)

	if !cfg.IsManagedMode() {
		fmt.Println("  Mode:            standalone (sqlite)")
		fmt.Println("  Status:          N/A (schema is applied on open)")
		return nil
	}

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(context.Background(), db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	fmt.Printf("  Schema current:  %d\n", s.CurrentVersion)
	fmt.Printf("  Schema required: %d\n", s.RequiredVersion)

	switch {
	case s.Dirty:
		fmt.Println("  Status:          DIRTY (failed migration)")
		fmt.Println()
		fmt.Print(upgrade.FormatError(s))
	case s.Compatible:
		fmt.Println("  Status:          UP TO DATE")
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Println("  Status:          BINARY TOO OLD")
	default:
		fmt.Printf("  Status:          UPGRADE NEEDED (%d -> %d)\n", s.CurrentVersion, s.RequiredVersion)
		fmt.Println()
		fmt.Println("  Run 'subgate upgrade' to apply all pending changes.")
	}
	return nil
}

func runUpgrade() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.IsManagedMode() {
		fmt.Println("Standalone mode: no database migrations needed.")
		return nil
	}
	dsn := cfg.Database.PostgresDSN

	db, err := pg.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(context.Background(), db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	fmt.Printf("  Schema current:  %d\n", s.CurrentVersion)
	fmt.Printf("  Schema required: %d\n", s.RequiredVersion)
	fmt.Println()

	if s.Dirty || s.CurrentVersion > s.RequiredVersion {
		fmt.Print(upgrade.FormatError(s))
		return ErrUpgradeFailed
	}
	if !s.NeedsMigration {
		fmt.Println("  SQL schema is up to date.")
		return nil
	}

	fmt.Print("  Applying SQL migrations... ")
	v, err := migrateUp(dsn)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Printf("OK (v%d -> v%d)\n", s.CurrentVersion, v)
	fmt.Println()
	fmt.Println("  Upgrade complete.")
	return nil
}

// migrateUp applies all pending migrations and returns the resulting version.
func migrateUp(dsn string) (uint, error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, _, err := currentVersion(m)
	return v, err
}

// checkSchemaOrAutoUpgrade is called from startup to gate on schema compatibility.
// If SUBGATE_AUTO_UPGRADE=true and schema is outdated, it migrates inline.
func checkSchemaOrAutoUpgrade(ctx context.Context, dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if s.Dirty || s.CurrentVersion > s.RequiredVersion {
		return fmt.Errorf("%w\n%s", s.Err(), upgrade.FormatError(s))
	}

	if os.Getenv("SUBGATE_AUTO_UPGRADE") == "true" {
		slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
		v, err := migrateUp(dsn)
		if err != nil {
			return fmt.Errorf("auto-upgrade: %w", err)
		}
		slog.Info("auto-upgrade complete", "version", v)
		return nil
	}

	return fmt.Errorf("%w\n%s", s.Err(), upgrade.FormatError(s))
}
