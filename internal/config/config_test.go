package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envNames = []string{
	"PORT", "DATABASE_URL", "REDIS_URL", "CACHE_TTL", "ORACLE_URL", "ORACLE_TIMEOUT",
	"HEDGE_OWNER", "FEE_PERMILLE", "MIN_STAKE", "MAX_DURATION",
	"CLOCK_GENESIS", "CLOCK_INTERVAL", "LOG_LEVEL",
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hedge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
database:
  url: "postgres://localhost/hedge"
redis:
  url: "redis://localhost:6379/0"
  ttl: 1m
oracle:
  url: "http://oracle.local"
  timeout: 2s
engine:
  owner: "treasury"
  fee_permille: 10
  min_stake: 500
  max_duration: 1000
clock:
  genesis: "2026-01-01T00:00:00Z"
  interval: 1m
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/hedge" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Redis.TTL != time.Minute {
		t.Errorf("Redis.TTL = %s, want 1m", cfg.Redis.TTL)
	}
	if cfg.Oracle.Timeout != 2*time.Second {
		t.Errorf("Oracle.Timeout = %s, want 2s", cfg.Oracle.Timeout)
	}
	if cfg.Engine.Owner != "treasury" {
		t.Errorf("Engine.Owner = %q, want treasury", cfg.Engine.Owner)
	}

	p := cfg.EngineParams()
	if p.MinStake != 500 || p.MaxDuration != 1000 || p.Fees.Permille != 10 {
		t.Errorf("EngineParams = %+v", p)
	}

	genesis, err := cfg.GenesisTime()
	if err != nil || !genesis.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("GenesisTime = %v, %v", genesis, err)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEDGE_OWNER", "owner")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	p := cfg.EngineParams()
	if p.MinStake != 1000 || p.MaxDuration != 52560 || p.Fees.Permille != 5 {
		t.Errorf("unexpected default params %+v", p)
	}
	if cfg.Clock.Interval != 10*time.Minute {
		t.Errorf("Clock.Interval = %s, want 10m", cfg.Clock.Interval)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel = %v, want info", cfg.SlogLevel())
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
engine:
  owner: "file-owner"
`)
	t.Setenv("PORT", "7070")
	t.Setenv("HEDGE_OWNER", "env-owner")
	t.Setenv("DATABASE_URL", "postgres://env/hedge")
	t.Setenv("ORACLE_URL", "http://env-oracle")
	t.Setenv("MIN_STAKE", "2500")
	t.Setenv("CACHE_TTL", "45s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Engine.Owner != "env-owner" {
		t.Errorf("Engine.Owner = %q, want env-owner", cfg.Engine.Owner)
	}
	if cfg.Database.URL != "postgres://env/hedge" || cfg.Oracle.URL != "http://env-oracle" {
		t.Errorf("URL overrides not applied: %+v %+v", cfg.Database, cfg.Oracle)
	}
	if cfg.Engine.MinStake != 2500 {
		t.Errorf("Engine.MinStake = %d, want 2500", cfg.Engine.MinStake)
	}
	if cfg.Redis.TTL != 45*time.Second {
		t.Errorf("Redis.TTL = %s, want 45s", cfg.Redis.TTL)
	}
	if cfg.SlogLevel() != slog.LevelWarn {
		t.Errorf("SlogLevel = %v, want warn", cfg.SlogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"missing owner", "server:\n  port: 8080\n", nil},
		{"bad port env", "engine:\n  owner: o\n", map[string]string{"PORT": "http"}},
		{"bad duration env", "engine:\n  owner: o\n", map[string]string{"ORACLE_TIMEOUT": "soon"}},
		{"bad int env", "engine:\n  owner: o\n", map[string]string{"MAX_DURATION": "long"}},
		{"fee out of range", "engine:\n  owner: o\n  fee_permille: 1000\n", nil},
		{"zero min stake", "engine:\n  owner: o\n  min_stake: -1\n", nil},
		{"bad genesis", "engine:\n  owner: o\nclock:\n  genesis: yesterday\n", nil},
		{"malformed yaml", "engine: [owner\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
