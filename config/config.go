// Package config provides configuration management for the notewatch daemon.
// It supports loading configuration from a YAML file, environment variables,
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/notewatch/pkg/db"
)

// Default configuration values.
const (
	DefaultConfigDir    = ".notewatch"
	DefaultConfigFile   = "config.yaml"
	DefaultBotName      = "Notewatch"
	DefaultTickInterval = 60 * time.Second
	DefaultLookahead    = 24 * time.Hour
	DefaultMetricsAddr  = ""
)

// LifecycleConfig holds the notetaker API settings.
type LifecycleConfig struct {
	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string `yaml:"base_url,omitempty"`

	// GrantID scopes created sessions to a connected account.
	GrantID string `yaml:"grant_id,omitempty"`

	// CalendarID selects the calendar to watch ("primary" when empty).
	CalendarID string `yaml:"calendar_id,omitempty"`

	// BotName is the display name the bot joins with.
	BotName string `yaml:"bot_name,omitempty"`

	// APIKey authenticates requests. Prefer the encrypted credential store
	// (notewatch auth); this field and NOTEWATCH_API_KEY exist for CI.
	APIKey string `yaml:"api_key,omitempty"`
}

// RedisConfig holds the downstream hand-off queue settings.
type RedisConfig struct {
	// Addr is the Redis address (host:port). Empty disables publishing.
	Addr string `yaml:"addr,omitempty"`

	// Password authenticates to Redis when set.
	Password string `yaml:"password,omitempty"`

	// DB selects the Redis database.
	DB int `yaml:"db,omitempty"`
}

// Config holds the notewatch daemon settings.
type Config struct {
	// Lifecycle is the notetaker and calendar API configuration.
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// Database is the PostgreSQL configuration for the trigger ledger and
	// result store. Nil means in-memory stores (dry runs only).
	Database *db.Config `yaml:"database,omitempty"`

	// Redis configures the downstream result queue.
	Redis RedisConfig `yaml:"redis,omitempty"`

	// TickInterval is the idle poll cadence.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Lookahead bounds how far ahead the calendar is queried.
	Lookahead time.Duration `yaml:"lookahead"`

	// MetricsAddr exposes Prometheus metrics when set (host:port).
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Lifecycle: LifecycleConfig{
			BotName: DefaultBotName,
		},
		TickInterval: DefaultTickInterval,
		Lookahead:    DefaultLookahead,
		MetricsAddr:  DefaultMetricsAddr,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $NOTEWATCH_CONFIG_DIR if set, otherwise ~/.notewatch
func ConfigDir() (string, error) {
	if dir := os.Getenv("NOTEWATCH_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.notewatch/config.yaml or $NOTEWATCH_CONFIG_DIR/config.yaml)
// 3. Environment variables (NOTEWATCH_*)
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// A temp struct carries durations as strings.
	type configFile struct {
		Lifecycle    LifecycleConfig `yaml:"lifecycle"`
		Database     *db.Config      `yaml:"database"`
		Redis        RedisConfig     `yaml:"redis"`
		TickInterval string          `yaml:"tick_interval"`
		Lookahead    string          `yaml:"lookahead"`
		MetricsAddr  string          `yaml:"metrics_addr"`
		Debug        bool            `yaml:"debug"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Lifecycle.BaseURL != "" {
		cfg.Lifecycle.BaseURL = fileCfg.Lifecycle.BaseURL
	}
	if fileCfg.Lifecycle.GrantID != "" {
		cfg.Lifecycle.GrantID = fileCfg.Lifecycle.GrantID
	}
	if fileCfg.Lifecycle.CalendarID != "" {
		cfg.Lifecycle.CalendarID = fileCfg.Lifecycle.CalendarID
	}
	if fileCfg.Lifecycle.BotName != "" {
		cfg.Lifecycle.BotName = fileCfg.Lifecycle.BotName
	}
	if fileCfg.Lifecycle.APIKey != "" {
		cfg.Lifecycle.APIKey = fileCfg.Lifecycle.APIKey
	}
	if fileCfg.Database != nil {
		cfg.Database = fileCfg.Database
	}
	if fileCfg.Redis.Addr != "" {
		cfg.Redis = fileCfg.Redis
	}
	if fileCfg.TickInterval != "" {
		d, err := time.ParseDuration(fileCfg.TickInterval)
		if err != nil {
			return fmt.Errorf("parsing tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	if fileCfg.Lookahead != "" {
		d, err := time.ParseDuration(fileCfg.Lookahead)
		if err != nil {
			return fmt.Errorf("parsing lookahead: %w", err)
		}
		cfg.Lookahead = d
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}
	cfg.Debug = fileCfg.Debug

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("NOTEWATCH_API_BASE_URL"); v != "" {
		cfg.Lifecycle.BaseURL = v
	}
	if v := os.Getenv("NOTEWATCH_GRANT_ID"); v != "" {
		cfg.Lifecycle.GrantID = v
	}
	if v := os.Getenv("NOTEWATCH_CALENDAR_ID"); v != "" {
		cfg.Lifecycle.CalendarID = v
	}
	if v := os.Getenv("NOTEWATCH_BOT_NAME"); v != "" {
		cfg.Lifecycle.BotName = v
	}
	if v := os.Getenv("NOTEWATCH_API_KEY"); v != "" {
		cfg.Lifecycle.APIKey = v
	}
	if v := os.Getenv("NOTEWATCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NOTEWATCH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NOTEWATCH_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("NOTEWATCH_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("NOTEWATCH_LOOKAHEAD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lookahead = d
		}
	}
	if v := os.Getenv("NOTEWATCH_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("NOTEWATCH_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if cfg.Database == nil && os.Getenv("NOTEWATCH_DB_HOST") != "" {
		cfg.Database = db.ConfigFromEnv()
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be positive")
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *Config) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	// Durations serialize as strings so the file round-trips through
	// loadFromFile.
	type configFile struct {
		Lifecycle    LifecycleConfig `yaml:"lifecycle"`
		Database     *db.Config      `yaml:"database,omitempty"`
		Redis        RedisConfig     `yaml:"redis,omitempty"`
		TickInterval string          `yaml:"tick_interval"`
		Lookahead    string          `yaml:"lookahead"`
		MetricsAddr  string          `yaml:"metrics_addr,omitempty"`
		Debug        bool            `yaml:"debug,omitempty"`
	}

	fileCfg := configFile{
		Lifecycle:    cfg.Lifecycle,
		Database:     cfg.Database,
		Redis:        cfg.Redis,
		TickInterval: cfg.TickInterval.String(),
		Lookahead:    cfg.Lookahead.String(),
		MetricsAddr:  cfg.MetricsAddr,
		Debug:        cfg.Debug,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}
