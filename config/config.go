package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the vigil service.
type Config struct {
	Engine struct {
		// Workers is the number of batch evaluation workers.
		Workers int `mapstructure:"workers"`
		// BatchSize is the per-worker flush threshold.
		BatchSize int `mapstructure:"batch_size"`
		// FlushInterval bounds how long a partial batch may wait.
		FlushInterval time.Duration `mapstructure:"flush_interval"`
		// QueueCapacity bounds the ingestion queue.
		QueueCapacity int `mapstructure:"queue_capacity"`
		// RulesDir is the directory of YAML rule files.
		RulesDir string `mapstructure:"rules_dir"`
	} `mapstructure:"engine"`

	Redis struct {
		// Enabled controls whether streaming aggregation is active.
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Storage struct {
		// SQLitePath is the alert database path; ":memory:" for ephemeral runs.
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Notify struct {
		Enabled       bool              `mapstructure:"enabled"`
		WebhookURL    string            `mapstructure:"webhook_url"`
		Method        string            `mapstructure:"method"`
		Headers       map[string]string `mapstructure:"headers"`
		Timeout       time.Duration     `mapstructure:"timeout"`
		QueueSize     int               `mapstructure:"queue_size"`
		RatePerSecond float64           `mapstructure:"rate_per_second"`
	} `mapstructure:"notify"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Logging struct {
		// Level is one of debug, info, warn, error.
		Level string `mapstructure:"level"`
		// Development switches to the human-readable console encoder.
		Development bool `mapstructure:"development"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("engine.workers", 4)
	viper.SetDefault("engine.batch_size", 100)
	viper.SetDefault("engine.flush_interval", "5s")
	viper.SetDefault("engine.queue_capacity", 1000)
	viper.SetDefault("engine.rules_dir", "./rules")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("storage.sqlite_path", "./data/vigil.db")

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.method", "POST")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("notify.queue_size", 256)
	viper.SetDefault("notify.rate_per_second", 10)

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.development", false)
}

// Load reads configuration from config.yaml (working directory or ./config)
// plus VIGIL_* environment overrides. A missing config file is fine; defaults
// and environment cover everything.
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("VIGIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("engine.batch_size must be positive, got %d", c.Engine.BatchSize)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify.enabled is true")
	}
	return nil
}
