package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Broadcast.HeartbeatInterval != 25*time.Second || cfg.Broadcast.MaxMissed != 2 {
		t.Errorf("Broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Activity.DefaultLimit != 20 {
		t.Errorf("Activity.DefaultLimit = %d, want 20", cfg.Activity.DefaultLimit)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should validate, got %v", errs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.database_url"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSqlite; c.Store.SqlitePath = "" }, "store.sqlite_path"},
		{"zero buffer", func(c *Config) { c.Broadcast.Buffer = 0 }, "broadcast.buffer"},
		{"tiny heartbeat", func(c *Config) { c.Broadcast.HeartbeatInterval = time.Millisecond }, "broadcast.heartbeat_interval"},
		{"no workers", func(c *Config) { c.Balancer.MaxWorkers = 0 }, "balancer.max_workers"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"no shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || errs[0].Field != tc.field {
				t.Fatalf("want one error on %s, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") || !strings.Contains(msg, "b: worse (got: 2)") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "taskboard.yaml")
	yaml := "server:\n  addr: \":9000\"\nbroadcast:\n  heartbeat_interval: 5s\nlogging:\n  level: DEBUG\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKBOARD_BALANCER_MAX_WORKERS", "3")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("logging.level", "", "")
	if err := fs.Parse([]string{"--logging.level=WARN"}); err != nil {
		t.Fatal(err)
	}

	if err := Init(path, fs); err != nil {
		t.Fatalf("Init: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("file value: addr = %q", cfg.Server.Addr)
	}
	if cfg.Broadcast.HeartbeatInterval != 5*time.Second {
		t.Errorf("file duration: %v", cfg.Broadcast.HeartbeatInterval)
	}
	if cfg.Balancer.MaxWorkers != 3 {
		t.Errorf("env value: max_workers = %d", cfg.Balancer.MaxWorkers)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("flag value: level = %q", cfg.Logging.Level)
	}
	if cfg.Activity.DefaultLimit != 20 {
		t.Errorf("default value: default_limit = %d", cfg.Activity.DefaultLimit)
	}
}

func TestInitMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := Init(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("store.backend", "mongo")

	_, err := Load()
	if _, ok := err.(ValidationErrors); !ok {
		t.Fatalf("want ValidationErrors, got %T %v", err, err)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "taskboard") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != filepath.Join("/tmp/xdg", "taskboard", "config.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}
}
