package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 30,
			SendRPS:     25,
			SendBurst:   5,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.subgate/subgate.db",
		},
		Redis: RedisConfig{
			Prefix: "subgate",
		},
		Gate: GateConfig{
			Workers:              64,
			MaxParallelChecks:    4,
			DedupTTLSeconds:      10,
			ActivationTTLSeconds: 300,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "subgate",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Telegram
	envStr("SUBGATE_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("SUBGATE_TELEGRAM_PROXY", &c.Telegram.Proxy)
	if v := os.Getenv("SUBGATE_TELEGRAM_SEND_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			c.Telegram.SendRPS = rps
		}
	}

	// Database
	envStr("SUBGATE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("SUBGATE_MODE", &c.Database.Mode)
	envStr("SUBGATE_SQLITE_PATH", &c.Database.SQLitePath)

	// Redis
	envStr("SUBGATE_REDIS_ADDR", &c.Redis.Addr)
	envStr("SUBGATE_REDIS_PASSWORD", &c.Redis.Password)
	envInt("SUBGATE_REDIS_DB", &c.Redis.DB)
	envStr("SUBGATE_REDIS_PREFIX", &c.Redis.Prefix)

	// Gate
	envInt("SUBGATE_WORKERS", &c.Gate.Workers)
	envBool("SUBGATE_DEBUG", &c.Gate.Debug)

	// Telemetry
	envStr("SUBGATE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("SUBGATE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("SUBGATE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("SUBGATE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("SUBGATE_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// Save writes the config to a JSON file. Secrets are tagged json:"-" and never persist.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
