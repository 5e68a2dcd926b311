// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=json text"`

	DiscordToken  string `mapstructure:"DISCORD_TOKEN"`
	CommandPrefix string `mapstructure:"COMMAND_PREFIX" validate:"required"`

	GithubToken    string        `mapstructure:"GITHUB_TOKEN"`
	GithubAPIURL   string        `mapstructure:"GITHUB_API_URL" validate:"omitempty,url"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"min=1s"`

	SyncInterval  time.Duration `mapstructure:"SYNC_INTERVAL" validate:"min=1s"`
	SyncSchedule  string        `mapstructure:"SYNC_SCHEDULE"`
	SyncOnStartup bool          `mapstructure:"SYNC_ON_STARTUP"`
	DefaultBranch string        `mapstructure:"DEFAULT_BRANCH" validate:"required"`

	StoreDriver string `mapstructure:"STORE_DRIVER" validate:"oneof=json sqlite postgres"`
	StorePath   string `mapstructure:"STORE_PATH" validate:"required_unless=StoreDriver postgres"`
	DBURL       string `mapstructure:"DB_URL" validate:"required_if=StoreDriver postgres"`

	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"min=1s"`
}

var defaults = map[string]any{
	"LOG_LEVEL":        "info",
	"LOG_FORMAT":       "json",
	"DISCORD_TOKEN":    "",
	"COMMAND_PREFIX":   "!",
	"GITHUB_TOKEN":     "",
	"GITHUB_API_URL":   "",
	"REQUEST_TIMEOUT":  "10s",
	"SYNC_INTERVAL":    "10m",
	"SYNC_SCHEDULE":    "",
	"SYNC_ON_STARTUP":  false,
	"DEFAULT_BRANCH":   "main",
	"STORE_DRIVER":     "json",
	"STORE_PATH":       "data/channelMappings.json",
	"DB_URL":           "",
	"HTTP_ADDR":        "",
	"SHUTDOWN_TIMEOUT": "15s",
}

// LoadConfig reads configuration from .env, an optional config file, and environment variables,
// in increasing order of precedence. configFile may be empty.
func LoadConfig(configFile string) (*Config, error) {
	// Load from .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	// Every key needs a default so Unmarshal sees env-only values.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// RequireDiscord reports an error when the bot cannot be started.
func (c *Config) RequireDiscord() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return errors.New("DISCORD_TOKEN is a required configuration field")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
