// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"econ-clock/internal/bucket"
	"econ-clock/internal/domain"
	"econ-clock/internal/logger"
	"econ-clock/internal/timeresolve"
)

// SourceConfig selects the authoritative event source.
type SourceConfig struct {
	Kind          domain.SourceKind `yaml:"kind"`
	PostgresDSN   string            `yaml:"postgres_dsn,omitempty"`
	ClickhouseDSN string            `yaml:"clickhouse_dsn,omitempty"`
	ICSURL        string            `yaml:"ics_url,omitempty"`
	ICSRefresh    time.Duration     `yaml:"ics_refresh"`
}

// CacheConfig configures the hot and persistent tiers.
type CacheConfig struct {
	HotTTL         time.Duration `yaml:"hot_ttl"`
	PersistentPath string        `yaml:"persistent_path"` // empty disables the persistent tier
	PersistentTTL  time.Duration `yaml:"persistent_ttl"`
}

// EngineConfig configures bucketing, scoring and exit transitions.
type EngineConfig struct {
	WindowMinutes int           `yaml:"window_minutes"`
	NowWindow     time.Duration `yaml:"now_window"`
	Tick          time.Duration `yaml:"tick"`
	ExitAnimation time.Duration `yaml:"exit_animation"`
	Grace         time.Duration `yaml:"grace"`
}

// SchedulerConfig holds cron schedules of the maintenance jobs.
type SchedulerConfig struct {
	CacheCleanup string `yaml:"cache_cleanup"`
	HotPurge     string `yaml:"hot_purge"`
}

// SessionConfig is the initial viewer state.
type SessionConfig struct {
	Filters       domain.Filters `yaml:"filters"`
	FavoritesOnly bool           `yaml:"favorites_only"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Timezone  string          `yaml:"timezone"`
	Log       logger.Config   `yaml:"log"`
	Source    SourceConfig    `yaml:"source"`
	Cache     CacheConfig     `yaml:"cache"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Session   SessionConfig   `yaml:"session"`
}

// Default returns an in-memory default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !c.Source.Kind.IsValid() {
		c.Source.Kind = domain.SourceKindMemory
	}
	if c.Source.ICSRefresh <= 0 {
		c.Source.ICSRefresh = 15 * time.Minute
	}
	if c.Cache.HotTTL <= 0 {
		c.Cache.HotTTL = 5 * time.Minute
	}
	if c.Cache.PersistentTTL <= 0 {
		c.Cache.PersistentTTL = 6 * time.Hour
	}
	if c.Engine.WindowMinutes <= 0 || c.Engine.WindowMinutes > 1440 {
		c.Engine.WindowMinutes = 30
	}
	if c.Engine.NowWindow <= 0 {
		c.Engine.NowWindow = 10 * time.Minute
	}
	if c.Engine.Tick <= 0 {
		c.Engine.Tick = time.Second
	}
	if c.Engine.ExitAnimation <= 0 {
		c.Engine.ExitAnimation = 300 * time.Millisecond
	}
	if c.Engine.Grace <= 0 {
		c.Engine.Grace = 450 * time.Millisecond
	}
	if c.Scheduler.CacheCleanup == "" {
		c.Scheduler.CacheCleanup = "@every 10m"
	}
	if c.Scheduler.HotPurge == "" {
		c.Scheduler.HotPurge = "@every 1m"
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := timeresolve.Location(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if !bucket.ValidWindow(c.Engine.WindowMinutes) {
		return fmt.Errorf("engine.window_minutes %d must divide 1440", c.Engine.WindowMinutes)
	}
	switch c.Source.Kind {
	case domain.SourceKindPostgres:
		if c.Source.PostgresDSN == "" {
			return errors.New("source.postgres_dsn is required for postgres source")
		}
	case domain.SourceKindClickHouse:
		if c.Source.ClickhouseDSN == "" {
			return errors.New("source.clickhouse_dsn is required for clickhouse source")
		}
	case domain.SourceKindICS:
		if c.Source.ICSURL == "" {
			return errors.New("source.ics_url is required for ics source")
		}
	}
	return nil
}

// Load reads the YAML file at path, writing defaults on first run, then
// applies environment overrides (a .env file next to the working directory
// is honoured).
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.ApplyEnv()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ECONCLOCK_* variables and DATABASE_URL.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("ECONCLOCK_LISTEN", c.Listen)
	c.Timezone = getEnv("ECONCLOCK_TIMEZONE", c.Timezone)
	c.Log.Level = getEnv("ECONCLOCK_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("ECONCLOCK_LOG_PRETTY", c.Log.Pretty)
	c.Source.Kind = domain.SourceKind(getEnv("ECONCLOCK_SOURCE", string(c.Source.Kind)))
	c.Source.PostgresDSN = getEnv("DATABASE_URL", c.Source.PostgresDSN)
	c.Source.ClickhouseDSN = getEnv("CLICKHOUSE_DSN", c.Source.ClickhouseDSN)
	c.Source.ICSURL = getEnv("ECONCLOCK_ICS_URL", c.Source.ICSURL)
	c.Cache.PersistentPath = getEnv("ECONCLOCK_CACHE_PATH", c.Cache.PersistentPath)
	c.Engine.WindowMinutes = getEnvAsInt("ECONCLOCK_WINDOW_MINUTES", c.Engine.WindowMinutes)
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".econclock-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
