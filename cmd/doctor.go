package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/subgate/internal/channels/telegram"
	"github.com/nextlevelbuilder/subgate/internal/config"
	"github.com/nextlevelbuilder/subgate/internal/store/pg"
	"github.com/nextlevelbuilder/subgate/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("subgate doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Config error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed (postgres)\n", "Mode:")
		checkPostgres(ctx, cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s standalone (sqlite)\n", "Mode:")
		fmt.Printf("    %-12s %s\n", "Path:", config.ExpandHome(cfg.Database.SQLitePath))
		if stores, err := openStores(cfg); err != nil {
			fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		} else {
			stores.Close()
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	}

	fmt.Println()
	fmt.Println("  Cache:")
	if cfg.Redis.Addr == "" {
		fmt.Printf("    %-12s in-memory (single instance only)\n", "Mode:")
	} else {
		fmt.Printf("    %-12s redis %s (db %d)\n", "Mode:", cfg.Redis.Addr, cfg.Redis.DB)
		if kv, err := openKV(ctx, cfg); err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		} else {
			kv.Close()
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	checkTelegram(ctx, cfg.Telegram)

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "Endpoint:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-12s disabled\n", "Status:")
	}
}

func checkPostgres(ctx context.Context, dsn string) {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, see: subgate upgrade --status)\n", "Schema:", s.CurrentVersion)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (upgrade needed, run: subgate upgrade)\n", "Schema:", s.CurrentVersion)
	}
}

func checkTelegram(ctx context.Context, cfg config.TelegramConfig) {
	if cfg.Token == "" {
		fmt.Printf("    %-12s NOT SET (SUBGATE_TELEGRAM_TOKEN)\n", "Token:")
		return
	}
	bot, err := telegram.NewBot(cfg)
	if err != nil {
		fmt.Printf("    %-12s INVALID (%s)\n", "Token:", err)
		return
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		fmt.Printf("    %-12s getMe FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s @%s (id %d)\n", "Bot:", me.Username, me.ID)
}
