// Package config loads the server configuration from an optional YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atmx/yield-hedge/internal/fee"
	"github.com/atmx/yield-hedge/internal/hedge"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the hedge server.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Oracle   Oracle   `yaml:"oracle"`
	Engine   Engine   `yaml:"engine"`
	Clock    Clock    `yaml:"clock"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port int `yaml:"port"`
}

// Database selects PostgreSQL persistence. Empty URL means in-memory.
type Database struct {
	URL string `yaml:"url"`
}

// Redis enables the read-through cache in front of PostgreSQL.
type Redis struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// Oracle points at the yield data service. Empty URL means a static,
// empty oracle: every settlement fails with ORACLE_FAIL.
type Oracle struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Engine holds the owner identity and economic parameters.
type Engine struct {
	Owner       string `yaml:"owner"`
	FeePermille int64  `yaml:"fee_permille"`
	MinStake    int64  `yaml:"min_stake"`
	MaxDuration int64  `yaml:"max_duration"`
}

// Clock maps wall time to block heights.
type Clock struct {
	Genesis  string        `yaml:"genesis"` // RFC 3339
	Interval time.Duration `yaml:"interval"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Server: Server{Port: 8080},
		Redis:  Redis{TTL: 30 * time.Second},
		Oracle: Oracle{Timeout: 5 * time.Second},
		Engine: Engine{
			FeePermille: fee.DefaultPermille,
			MinStake:    hedge.DefaultMinStake,
			MaxDuration: hedge.DefaultMaxDuration,
		},
		Clock:   Clock{Interval: 10 * time.Minute},
		Logging: Logging{Level: "info"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over the defaults, then
// applies environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if err := envDuration("CACHE_TTL", &cfg.Redis.TTL); err != nil {
		return err
	}

	if v := os.Getenv("ORACLE_URL"); v != "" {
		cfg.Oracle.URL = v
	}
	if err := envDuration("ORACLE_TIMEOUT", &cfg.Oracle.Timeout); err != nil {
		return err
	}

	if v := os.Getenv("HEDGE_OWNER"); v != "" {
		cfg.Engine.Owner = v
	}
	for name, dst := range map[string]*int64{
		"FEE_PERMILLE": &cfg.Engine.FeePermille,
		"MIN_STAKE":    &cfg.Engine.MinStake,
		"MAX_DURATION": &cfg.Engine.MaxDuration,
	} {
		if err := envInt(name, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("CLOCK_GENESIS"); v != "" {
		cfg.Clock.Genesis = v
	}
	if err := envDuration("CLOCK_INTERVAL", &cfg.Clock.Interval); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

func envInt(name string, dst *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Engine.Owner == "":
		return errors.New("config: engine owner is required (HEDGE_OWNER)")
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	case c.Engine.FeePermille <= 0 || c.Engine.FeePermille >= 1000:
		return fmt.Errorf("config: fee_permille must be in (0, 1000), got %d", c.Engine.FeePermille)
	case c.Engine.MinStake <= 0:
		return fmt.Errorf("config: min_stake must be positive, got %d", c.Engine.MinStake)
	case c.Engine.MaxDuration <= 0:
		return fmt.Errorf("config: max_duration must be positive, got %d", c.Engine.MaxDuration)
	case c.Clock.Interval <= 0:
		return fmt.Errorf("config: clock interval must be positive, got %s", c.Clock.Interval)
	}
	if _, err := c.GenesisTime(); err != nil {
		return err
	}
	return nil
}

// GenesisTime parses Clock.Genesis. Empty means the Unix epoch.
func (c *Config) GenesisTime() (time.Time, error) {
	if c.Clock.Genesis == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, c.Clock.Genesis)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: clock genesis: %w", err)
	}
	return t, nil
}

// EngineParams converts the engine section into hedge.Params.
func (c *Config) EngineParams() hedge.Params {
	return hedge.Params{
		MinStake:    c.Engine.MinStake,
		MaxDuration: c.Engine.MaxDuration,
		Fees:        fee.NewCalculator(c.Engine.FeePermille),
	}
}

// SlogLevel maps Logging.Level to a slog level. Unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
