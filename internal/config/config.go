// Package config loads settings for cmd/dcb-migrate and the example
// applications from a config.yaml file, environment variables, and
// defaults, the same layering CloudPasture-kubevirt-shepherd's
// internal/config uses, trimmed to this repo's own settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Listener ListenerConfig `mapstructure:"listener"`
}

// DatabaseConfig holds the Postgres connection pool settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// LogConfig holds logger settings, consumed by internal/logging.Init.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ListenerConfig holds the default tuning for registered listeners.
type ListenerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	NotifyEnabled bool          `mapstructure:"notify_enabled"`
}

// Load reads configuration from ./config.yaml (optional) and environment
// variables (DATABASE_URL, LOG_LEVEL, ...), falling back to defaults.
// Environment variables take precedence over the config file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/go-dcb")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url (or DATABASE_URL) must be set")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("listener.poll_interval", "1s")
	v.SetDefault("listener.batch_size", 100)
	v.SetDefault("listener.notify_enabled", true)
}
