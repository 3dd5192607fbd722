// Package config loads runtime configuration from an optional YAML file and
// AUTOMATON_-prefixed environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration of the automaton process.
type Config struct {
	// Database selects the storage backend: "libsql" or "postgres".
	Database struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Scheduler struct {
		// SweepSpec is the cron spec driving both periodic sweeps.
		SweepSpec string `mapstructure:"sweep_spec"`
	} `mapstructure:"scheduler"`

	Webhook struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"webhook"`
}

// Load reads configuration with defaults, an optional config file, and
// environment overrides. An explicit path of "" searches the working
// directory and /etc/automaton for automaton.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.driver", "libsql")
	v.SetDefault("database.dsn", "file:automaton.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scheduler.sweep_spec", "*/5 * * * *")
	v.SetDefault("webhook.timeout", 10*time.Second)

	v.SetEnvPrefix("AUTOMATON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("automaton")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/automaton")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Database.Driver != "libsql" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// SlogLevel converts the configured level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
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
