package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/cache"
	"github.com/nextlevelbuilder/subgate/internal/config"
	"github.com/nextlevelbuilder/subgate/internal/store"
	"github.com/nextlevelbuilder/subgate/internal/store/pg"
	"github.com/nextlevelbuilder/subgate/internal/store/sqlite"
)

// loadConfig loads and validates the config file plus env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStores opens Postgres in managed mode, the SQLite file otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		stores, err := pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("open postgres stores: %w", err)
		}
		return stores, nil
	}
	path := config.ExpandHome(cfg.Database.SQLitePath)
	stores, err := sqlite.NewSQLiteStores(store.StoreConfig{SQLitePath: path})
	if err != nil {
		return nil, fmt.Errorf("open sqlite stores: %w", err)
	}
	return stores, nil
}

// openKV connects to Redis when configured, otherwise returns the in-process store.
func openKV(ctx context.Context, cfg *config.Config) (cache.KV, error) {
	if cfg.Redis.Addr == "" {
		slog.Info("redis not configured, using in-memory cache (single instance only)")
		return cache.NewMemoryCache(), nil
	}
	kv := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := kv.Ping(pingCtx); err != nil {
		kv.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return kv, nil
}

func newActivationSwitch(kv cache.KV, stores *store.Stores, cfg *config.Config) *cache.ActivationSwitch {
	return cache.NewActivationSwitch(kv, stores.Users, cfg.Redis.Prefix, cfg.Gate.ActivationTTL())
}
