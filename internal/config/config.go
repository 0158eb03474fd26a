// Package config loads taskboard settings from defaults, an optional YAML
// file, TASKBOARD_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"taskboard/internal/logging"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSqlite   = "sqlite"
)

// Config is the complete taskboard configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
	Balancer  BalancerConfig  `mapstructure:"balancer" yaml:"balancer"`
	Activity  ActivityConfig  `mapstructure:"activity" yaml:"activity"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "postgres", "sqlite".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	SqlitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// BroadcastConfig tunes the real-time hub.
type BroadcastConfig struct {
	Buffer            int           `mapstructure:"buffer" yaml:"buffer"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	MaxMissed         int           `mapstructure:"max_missed" yaml:"max_missed"`
}

// BalancerConfig tunes smart assignment.
type BalancerConfig struct {
	// MaxWorkers bounds concurrent load queries.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
}

// ActivityConfig controls the activity feed.
type ActivityConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
}

// LoggingConfig controls structured logging. Level changes in the config
// file apply without a restart.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File is a path to append JSON logs to; empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:    BackendMemory,
			SqlitePath: "taskboard.db",
		},
		Broadcast: BroadcastConfig{
			Buffer:            64,
			HeartbeatInterval: 25 * time.Second,
			MaxMissed:         2,
		},
		Balancer: BalancerConfig{MaxWorkers: 8},
		Activity: ActivityConfig{DefaultLimit: 20},
		Logging:  LoggingConfig{Level: logging.LevelInfo},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	d := Default()

	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	viper.SetDefault("store.backend", d.Store.Backend)
	viper.SetDefault("store.database_url", d.Store.DatabaseURL)
	viper.SetDefault("store.sqlite_path", d.Store.SqlitePath)

	viper.SetDefault("broadcast.buffer", d.Broadcast.Buffer)
	viper.SetDefault("broadcast.heartbeat_interval", d.Broadcast.HeartbeatInterval)
	viper.SetDefault("broadcast.max_missed", d.Broadcast.MaxMissed)

	viper.SetDefault("balancer.max_workers", d.Balancer.MaxWorkers)
	viper.SetDefault("activity.default_limit", d.Activity.DefaultLimit)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.file", d.Logging.File)
}

// Init wires viper to the config file, environment and flags. cfgFile
// overrides the search path when set. Flags are bound by name, so a flag
// called "server.addr" sets that key. A missing config file is not an
// error unless cfgFile names it.
func Init(cfgFile string, flags *pflag.FlagSet) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("TASKBOARD")
	// TASKBOARD_STORE_DATABASE_URL for store.database_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if flags != nil {
		if err := viper.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Watch re-reads the config file when it changes and applies the new
// logging level to log. Other settings need a restart. It is a no-op when
// no config file was loaded.
func Watch(log *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load()
		if err != nil {
			log.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		if !strings.EqualFold(cfg.Logging.Level, log.Level()) {
			log.SetLevel(cfg.Logging.Level)
			log.Info("log level changed", "level", cfg.Logging.Level)
		}
	})
	viper.WatchConfig()
}

// ConfigDir returns the user's taskboard config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskboard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskboard"
	}
	return filepath.Join(home, ".config", "taskboard")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
