package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gate.Workers != 64 || cfg.Gate.MaxParallelChecks != 4 {
		t.Fatalf("expected default gate sizing, got %+v", cfg.Gate)
	}
	if cfg.Gate.DedupTTL().Seconds() != 10 {
		t.Fatalf("expected 10s dedup ttl, got %s", cfg.Gate.DedupTTL())
	}
	if cfg.IsManagedMode() {
		t.Fatal("expected standalone mode by default")
	}
}

func TestLoad_JSON5AndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// comments and trailing commas are allowed
		database: { mode: "managed" },
		redis: { addr: "localhost:6379", prefix: "gate", },
		gate: { workers: 8, debug: true },
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SUBGATE_POSTGRES_DSN", "postgres://localhost/subgate")
	t.Setenv("SUBGATE_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("SUBGATE_WORKERS", "16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsManagedMode() {
		t.Fatal("expected managed mode with DSN from env")
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Prefix != "gate" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Gate.Workers != 16 {
		t.Fatalf("expected env to override workers, got %d", cfg.Gate.Workers)
	}
	if !cfg.Gate.Debug || cfg.Gate.MaxParallelChecks != 4 {
		t.Fatalf("expected file values merged over defaults, got %+v", cfg.Gate)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("expected token from env, got %q", cfg.Telegram.Token)
	}
}

func TestSave_NeverPersistsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.json")
	cfg := Default()
	cfg.Telegram.Token = "123:secret"
	cfg.Database.PostgresDSN = "postgres://user:pass@db/subgate"
	cfg.Redis.Password = "hunter2"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, secret := range []string{"123:secret", "user:pass", "hunter2"} {
		if strings.Contains(string(data), secret) {
			t.Fatalf("expected %q to be stripped from saved config", secret)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown mode", func(c *Config) { c.Database.Mode = "cluster" }, true},
		{"managed without dsn", func(c *Config) { c.Database.Mode = "managed" }, true},
		{"bad telemetry protocol", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Protocol = "udp"
		}, true},
		{"negative workers", func(c *Config) { c.Gate.Workers = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/.subgate/x.db"); got != home+"/.subgate/x.db" {
		t.Fatalf("expected expansion under %s, got %s", home, got)
	}
	if got := ExpandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Fatalf("expected absolute path unchanged, got %s", got)
	}
}
