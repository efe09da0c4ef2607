// Package config loads subtrack settings from a TOML file, a .env file and
// SUBTRACK_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by cmd/subtrack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/logging"
)

// Config holds all subtrack configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
	Billing   BillingConfig   `toml:"billing"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	AllowedOrigins  []string      `toml:"allowed_origins,omitempty"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BillingConfig holds projection and advancement settings.
type BillingConfig struct {
	MonthEnd    string `toml:"month_end"`
	MaxCharges  int    `toml:"max_charges"`
	Concurrency int    `toml:"concurrency"`
}

// SchedulerConfig controls the background renewal advancer.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // standard 5-field cron or a descriptor such as "@daily"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "subtrack.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Billing: BillingConfig{
			MonthEnd:   string(billing.MonthEndClamp),
			MaxCharges: 120,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "@daily",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "subtrack")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "subtrack")
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "subtrack")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "subtrack")
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file at path (the default path when empty),
// returning defaults if it doesn't exist. Environment overrides are applied
// and the result is validated.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads KEY=value pairs from the given files (./.env when none are
// given) into the process environment. Missing files are skipped; variables
// already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from SUBTRACK_* variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("SUBTRACK_ADDR", &cfg.Server.Addr)
	str("SUBTRACK_DB", &cfg.Database.Path)
	str("SUBTRACK_LOG_LEVEL", &cfg.Log.Level)
	str("SUBTRACK_LOG_FORMAT", &cfg.Log.Format)
	str("SUBTRACK_MONTH_END", &cfg.Billing.MonthEnd)
	str("SUBTRACK_SCHEDULE", &cfg.Scheduler.Schedule)

	if v := strings.TrimSpace(getenv("SUBTRACK_ALLOWED_ORIGINS")); v != "" {
		cfg.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, origin)
			}
		}
	}
	if v := strings.TrimSpace(getenv("SUBTRACK_SCHEDULER_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SUBTRACK_SCHEDULER_ENABLED: %w", err)
		}
		cfg.Scheduler.Enabled = enabled
	}
	if v := strings.TrimSpace(getenv("SUBTRACK_MAX_CHARGES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUBTRACK_MAX_CHARGES: %w", err)
		}
		cfg.Billing.MaxCharges = n
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if _, err := billing.ParseMonthEndPolicy(c.Billing.MonthEnd); err != nil {
		return fmt.Errorf("billing.month_end: %w", err)
	}
	if c.Billing.MaxCharges < 0 {
		return fmt.Errorf("billing.max_charges must not be negative")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// MonthEndPolicy returns the parsed month-end policy. Call after Validate.
func (c Config) MonthEndPolicy() billing.MonthEndPolicy {
	p, _ := billing.ParseMonthEndPolicy(c.Billing.MonthEnd)
	return p
}

// Save writes the config to path (the default path when empty).
func Save(path string, cfg Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}
