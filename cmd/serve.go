package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/subgate/internal/cache"
	"github.com/nextlevelbuilder/subgate/internal/channels"
	"github.com/nextlevelbuilder/subgate/internal/channels/telegram"
	"github.com/nextlevelbuilder/subgate/internal/gate"
	"github.com/nextlevelbuilder/subgate/internal/registry"
	"github.com/nextlevelbuilder/subgate/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("SUBGATE_TELEGRAM_TOKEN environment variable is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (no-op unless telemetry.enabled).
	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("otel tracing unavailable", "error", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("otel tracing shutdown failed", "error", err)
		}
	}()

	// Managed mode: gate startup on schema compatibility.
	if cfg.IsManagedMode() {
		if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.PostgresDSN); err != nil {
			return err
		}
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	bot, err := telegram.NewBot(cfg.Telegram)
	if err != nil {
		return err
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	// Gate dependencies, constructed once.
	reg := registry.New(stores)
	activation := newActivationSwitch(kv, stores, cfg)
	dedup := cache.NewDeduplicator(kv, cfg.Redis.Prefix, cfg.Gate.DedupTTL())
	messenger := telegram.NewMessenger(bot, cfg.Telegram.SendRPS, cfg.Telegram.SendBurst)

	evaluator := gate.NewEvaluator(reg, activation, telegram.NewOracle(bot), gate.EvaluatorConfig{
		MaxParallelChecks: cfg.Gate.MaxParallelChecks,
		Debug:             cfg.Gate.Debug,
	})
	enforcer := gate.NewEnforcer(messenger, dedup, gate.BotProfile{
		Username:  me.Username,
		FirstName: me.FirstName,
	})
	commands := telegram.NewCommands(bot, reg, activation, messenger)
	var channel channels.Channel = telegram.New(bot, cfg.Telegram, gate.NewService(evaluator, enforcer), commands, cfg.Gate.Workers)

	if err := channel.Start(ctx); err != nil {
		return err
	}

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	kvMode := "memory"
	if cfg.Redis.Addr != "" {
		kvMode = "redis"
	}
	slog.Info("subgate started",
		"version", Version,
		"mode", mode,
		"cache", kvMode,
		"bot", me.Username,
		"workers", cfg.Gate.Workers,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	if err := channel.Stop(context.Background()); err != nil {
		slog.Warn("channel stop failed", "channel", channel.Name(), "error", err)
	}
	return nil
}
