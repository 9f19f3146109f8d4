package config

import (
	"fmt"
	"time"

	"github.com/sonarboard/sonarboard/internal/models"
	"github.com/spf13/viper"
)

// Config represents the application configuration, resolved from flags,
// environment and config.yaml in that order, with hard-coded defaults
// underneath. The durable config collection backfills Perplexity fields
// that are still empty afterwards (see Merge).
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Perplexity PerplexityConfig `mapstructure:"perplexity"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SecurityConfig struct {
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Output        string `mapstructure:"output"`
	ConsoleOutput bool   `mapstructure:"console_output"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogsDir string `mapstructure:"logs_dir"`
}

type PerplexityConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	BaseURL            string  `mapstructure:"base_url"`
	DefaultModel       string  `mapstructure:"default_model"`
	DefaultMaxTokens   int     `mapstructure:"default_max_tokens"`
	DefaultTemperature float64 `mapstructure:"default_temperature"`
}

// Load resolves the configuration from viper's current state
func Load() (*Config, error) {
	// First-present-wins for the API key: environment beats the config
	// file, the stored config collection fills in later via Merge.
	viper.BindEnv("perplexity.api_key", "PERPLEXITY_API_KEY")
	viper.BindEnv("perplexity.base_url", "PERPLEXITY_BASE_URL")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Merge backfills Perplexity fields still empty after flag/env/file
// resolution from the durable config collection. The collection itself
// defaults when its file is missing, so the hard-coded layer arrives
// through it and resolution stays first-present-wins.
func (c *Config) Merge(stored *models.DashboardConfig) {
	if stored == nil {
		return
	}
	if c.Perplexity.APIKey == "" {
		c.Perplexity.APIKey = stored.APIKey
	}
	if c.Perplexity.BaseURL == "" {
		c.Perplexity.BaseURL = stored.BaseURL
	}
	if c.Perplexity.DefaultModel == "" {
		c.Perplexity.DefaultModel = stored.DefaultModel
	}
	if c.Perplexity.DefaultMaxTokens == 0 {
		c.Perplexity.DefaultMaxTokens = stored.DefaultMaxTokens
	}
	if c.Perplexity.DefaultTemperature == 0 {
		c.Perplexity.DefaultTemperature = stored.DefaultTemperature
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// The upstream call alone may take 30s; leave headroom.
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "logs/sonarboard.log"
	}
	cfg.Logging.ConsoleOutput = true
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 10
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.LogsDir == "" {
		cfg.Storage.LogsDir = "./logs"
	}

	// Perplexity fields are left for Merge: the stored config collection
	// is the layer between the config file and the hard-coded defaults.
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return nil
}
