package db

import (
	"context"
	"fmt"

	"taskboard/internal/config"
	"taskboard/internal/logging"
	"taskboard/pkg/audit"
	"taskboard/pkg/task"
	"taskboard/pkg/user"
)

// Backend bundles the stores for one storage engine.
type Backend struct {
	Name    string
	Tasks   task.Store
	Users   user.Store
	Actions audit.Log

	close func()
}

// Close releases the underlying connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open builds the stores selected by cfg.Backend and makes sure their
// tables exist.
func Open(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (*Backend, error) {
	if log == nil {
		log = logging.Nop()
	}
	var b *Backend
	switch cfg.Backend {
	case config.BackendMemory, "":
		actions := audit.NewMemLog()
		b = &Backend{
			Name:    config.BackendMemory,
			Tasks:   task.NewMemStore(actions),
			Users:   user.NewMemStore(),
			Actions: actions,
		}

	case config.BackendPostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		actions := audit.NewPgLog(pool)
		b = &Backend{
			Name:    config.BackendPostgres,
			Tasks:   task.NewPgStore(pool, actions),
			Users:   user.NewPgStore(pool),
			Actions: actions,
			close:   pool.Close,
		}

	case config.BackendSqlite:
		sdb, err := OpenSqlite(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		actions := audit.NewSqliteLog(sdb)
		b = &Backend{
			Name:    config.BackendSqlite,
			Tasks:   task.NewSqliteStore(sdb, actions),
			Users:   user.NewSqliteStore(sdb),
			Actions: actions,
			close:   func() { sdb.Close() },
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if err := b.Users.EnsureTable(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure users table: %w", err)
	}
	if err := b.Actions.EnsureTable(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure action log table: %w", err)
	}
	if err := b.Tasks.EnsureTable(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure tasks table: %w", err)
	}
	log.Info("store ready", "backend", b.Name)
	return b, nil
}
