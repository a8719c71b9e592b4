package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the subgate bot.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Gate      GateConfig      `json:"gate"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// DatabaseConfig selects the registry backend.
// PostgresDSN is NEVER read from config.json (secret); it only comes from env SUBGATE_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`                     // from env SUBGATE_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"`        // "standalone" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone database file (default ~/.subgate/subgate.db)
}

// IsManagedMode returns true if the registry lives in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// RedisConfig configures the ephemeral KV store.
// An empty Addr selects the in-process store (single instance only).
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`   // host:port
	Password string `json:"-"`                // from env SUBGATE_REDIS_PASSWORD only
	DB       int    `json:"db,omitempty"`     // logical database index
	Prefix   string `json:"prefix,omitempty"` // key namespace (default "subgate")
}

// GateConfig tunes message evaluation.
type GateConfig struct {
	Workers              int  `json:"workers,omitempty"`                // max concurrently evaluated group messages (default 64)
	MaxParallelChecks    int  `json:"max_parallel_checks,omitempty"`    // directory lookups in flight per message (default 4)
	DedupTTLSeconds      int  `json:"dedup_ttl_seconds,omitempty"`      // batch notification lock lifetime (default 10)
	ActivationTTLSeconds int  `json:"activation_ttl_seconds,omitempty"` // owner status cache lifetime (default 300)
	Debug                bool `json:"debug,omitempty"`                  // log messages from unmonitored chats
}

// DedupTTL returns the batch lock lifetime.
func (g GateConfig) DedupTTL() time.Duration {
	return time.Duration(g.DedupTTLSeconds) * time.Second
}

// ActivationTTL returns the owner status cache lifetime.
func (g GateConfig) ActivationTTL() time.Duration {
	return time.Duration(g.ActivationTTLSeconds) * time.Second
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "subgate")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	if c.Database.Mode != "" && c.Database.Mode != "standalone" && c.Database.Mode != "managed" {
		return fmt.Errorf("database.mode: unknown mode %q", c.Database.Mode)
	}
	if c.Database.Mode == "managed" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("database.mode is managed but SUBGATE_POSTGRES_DSN is not set")
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol: unknown protocol %q", c.Telemetry.Protocol)
		}
	}
	if c.Gate.Workers < 0 || c.Gate.MaxParallelChecks < 0 {
		return fmt.Errorf("gate: workers and max_parallel_checks must not be negative")
	}
	return nil
}
