package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appendLockKey serializes appends so the hash chain stays linear.
const appendLockKey = 7_340_201

// PgLog is a PostgreSQL-backed Log with hash-chained integrity.
type PgLog struct {
	pool *pgxpool.Pool
}

// NewPgLog creates a PgLog.
func NewPgLog(pool *pgxpool.Pool) *PgLog {
	return &PgLog{pool: pool}
}

// EnsureTable creates the action_log table if it doesn't exist.
func (l *PgLog) EnsureTable(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS action_log (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL UNIQUE,
			task_id    TEXT NOT NULL,
			task_title TEXT NOT NULL DEFAULT '',
			user_id    TEXT NOT NULL DEFAULT '',
			action     TEXT NOT NULL,
			details    TEXT NOT NULL DEFAULT '',
			timestamp  TIMESTAMPTZ NOT NULL,
			hash       TEXT NOT NULL,
			prev_hash  TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_action_log_timestamp ON action_log(timestamp DESC, seq DESC)`)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_action_log_task ON action_log(task_id, seq DESC)`)
	return err
}

// Append stores e in its own transaction.
func (l *PgLog) Append(ctx context.Context, e *Entry) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := l.AppendTx(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}
	return e, nil
}

// AppendTx stores e inside an existing transaction, so a task write and
// its audit entry commit or roll back together.
func (l *PgLog) AppendTx(ctx context.Context, tx pgx.Tx, e *Entry) error {
	if err := prepare(e, time.Now()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return fmt.Errorf("lock action log: %w", err)
	}

	var prevHash string
	err := tx.QueryRow(ctx, `SELECT hash FROM action_log ORDER BY seq DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}
	if err := seal(e, prevHash); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO action_log (id, task_id, task_title, user_id, action, details, timestamp, hash, prev_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		e.ID, e.TaskID, e.TaskTitle, e.UserID, string(e.Action), e.Details, e.Timestamp, e.Hash, e.PrevHash).
		Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (l *PgLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, timestamp, hash, prev_hash
		FROM action_log ORDER BY timestamp DESC, seq DESC LIMIT $1`, limit)
}

// ByTask returns entries for one task, newest first.
func (l *PgLog) ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error) {
	return l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, timestamp, hash, prev_hash
		FROM action_log WHERE task_id = $1 ORDER BY timestamp DESC, seq DESC LIMIT $2`, taskID, limit)
}

// Count returns the total number of entries.
func (l *PgLog) Count(ctx context.Context) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM action_log`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// VerifyChain walks the whole log in insertion order and checks every link.
func (l *PgLog) VerifyChain(ctx context.Context) error {
	entries, err := l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, timestamp, hash, prev_hash
		FROM action_log ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("verify chain query: %w", err)
	}
	return verify(entries)
}

func (l *PgLog) scanMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Seq, &e.ID, &e.TaskID, &e.TaskTitle, &e.UserID, &action, &e.Details, &e.Timestamp, &e.Hash, &e.PrevHash); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return entries, nil
}
