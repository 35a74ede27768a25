package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Model    ModelConfig    `mapstructure:"model"`
	Features FeaturesConfig `mapstructure:"features"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ModelConfig selects the scoring backend
type ModelConfig struct {
	Path           string        `mapstructure:"path"`
	Kind           string        `mapstructure:"kind"` // local or remote
	RemoteURL      string        `mapstructure:"remote_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// FeaturesConfig holds feature engineering configuration
type FeaturesConfig struct {
	RollingWindow time.Duration `mapstructure:"rolling_window"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	MaxReadings  int    `mapstructure:"max_readings"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AlertsConfig holds alerting behavior configuration
type AlertsConfig struct {
	HighTempThreshold   float64       `mapstructure:"high_temp_threshold"`
	MediumTempThreshold float64       `mapstructure:"medium_temp_threshold"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	RiskThreshold       float64       `mapstructure:"risk_threshold"`
	CheckInterval       time.Duration `mapstructure:"check_interval"`
	MinHistory          int           `mapstructure:"min_history"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, a .env file in the
// working directory and MOTORGUARD_ environment variables. An empty path
// uses defaults and environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("MOTORGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// variable name used by existing deployments
	if err := v.BindEnv("alerts.high_temp_threshold", "MOTORGUARD_ALERTS_HIGH_TEMP_THRESHOLD", "HIGH_TEMP_THRESHOLD"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("model.path", "./model.json")
	v.SetDefault("model.kind", "local")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.timeout", "10s")
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.retry_delay_base", "500ms")

	// Features defaults
	v.SetDefault("features.rolling_window", "15m")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/motorguard.db")
	v.SetDefault("storage.max_readings", 100000)
	v.SetDefault("storage.history_limit", 100)

	// Server defaults
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Alerts defaults
	v.SetDefault("alerts.high_temp_threshold", 60.0)
	v.SetDefault("alerts.medium_temp_threshold", 50.0)
	v.SetDefault("alerts.cooldown", "1m")
	v.SetDefault("alerts.risk_threshold", 0.7)
	v.SetDefault("alerts.check_interval", "5m")
	v.SetDefault("alerts.min_history", 15)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Model config
	switch c.Model.Kind {
	case "local":
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required for a local model")
		}
	case "remote":
		if c.Model.RemoteURL == "" {
			return fmt.Errorf("model.remote_url is required for a remote model")
		}
		if c.Model.Timeout <= 0 {
			return fmt.Errorf("model.timeout must be positive")
		}
	default:
		return fmt.Errorf("model.kind must be one of: local, remote")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("model.max_retries must not be negative")
	}

	// Validate Features config
	if c.Features.RollingWindow <= 0 {
		return fmt.Errorf("features.rolling_window must be positive")
	}

	// Validate Storage config
	if c.Storage.MaxReadings < 0 {
		return fmt.Errorf("storage.max_readings must not be negative")
	}
	if c.Storage.HistoryLimit < 4 {
		return fmt.Errorf("storage.history_limit must be at least 4")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Alerts config
	if c.Alerts.MediumTempThreshold >= c.Alerts.HighTempThreshold {
		return fmt.Errorf("alerts.medium_temp_threshold must be below alerts.high_temp_threshold")
	}
	if c.Alerts.MediumTempThreshold <= 0 {
		return fmt.Errorf("alerts.medium_temp_threshold must be positive")
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}
	if c.Alerts.RiskThreshold < 0.0 || c.Alerts.RiskThreshold > 1.0 {
		return fmt.Errorf("alerts.risk_threshold must be between 0.0 and 1.0")
	}
	if c.Alerts.CheckInterval < 1*time.Second {
		return fmt.Errorf("alerts.check_interval must be at least 1 second")
	}
	if c.Alerts.MinHistory < 4 {
		return fmt.Errorf("alerts.min_history must be at least 4")
	}
	if c.Alerts.MinHistory > c.Storage.HistoryLimit {
		return fmt.Errorf("alerts.min_history must not exceed storage.history_limit")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
