package config

import (
	"fmt"
	"strings"
	"time"

	"taskboard/internal/logging"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidBackends lists the supported store backends.
func ValidBackends() []string {
	return []string{BackendMemory, BackendPostgres, BackendSqlite}
}

// Validate returns every problem with c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Value: c.Server.Addr, Message: "is required"})
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "server.shutdown_timeout", Value: c.Server.ShutdownTimeout, Message: "must be positive"})
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, ValidationError{Field: "store.database_url", Value: "", Message: "is required for the postgres backend"})
		}
	case BackendSqlite:
		if c.Store.SqlitePath == "" {
			errs = append(errs, ValidationError{Field: "store.sqlite_path", Value: "", Message: "is required for the sqlite backend"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: "must be one of: " + strings.Join(ValidBackends(), ", "),
		})
	}

	if c.Broadcast.Buffer < 1 {
		errs = append(errs, ValidationError{Field: "broadcast.buffer", Value: c.Broadcast.Buffer, Message: "must be at least 1"})
	}
	if c.Broadcast.HeartbeatInterval < 100*time.Millisecond {
		errs = append(errs, ValidationError{Field: "broadcast.heartbeat_interval", Value: c.Broadcast.HeartbeatInterval, Message: "must be at least 100ms"})
	}
	if c.Broadcast.MaxMissed < 1 {
		errs = append(errs, ValidationError{Field: "broadcast.max_missed", Value: c.Broadcast.MaxMissed, Message: "must be at least 1"})
	}

	if c.Balancer.MaxWorkers < 1 || c.Balancer.MaxWorkers > 256 {
		errs = append(errs, ValidationError{Field: "balancer.max_workers", Value: c.Balancer.MaxWorkers, Message: "must be between 1 and 256"})
	}
	if c.Activity.DefaultLimit < 1 {
		errs = append(errs, ValidationError{Field: "activity.default_limit", Value: c.Activity.DefaultLimit, Message: "must be positive"})
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of: DEBUG, INFO, WARN, ERROR",
		})
	}
	return errs
}
