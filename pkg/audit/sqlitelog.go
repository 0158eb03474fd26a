package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SqliteLog is a SQLite-backed Log. Timestamps are stored as unix
// microseconds so they round-trip exactly into the hash.
type SqliteLog struct {
	db *sql.DB
}

// NewSqliteLog creates a SqliteLog.
func NewSqliteLog(db *sql.DB) *SqliteLog {
	return &SqliteLog{db: db}
}

// EnsureTable creates the action_log table if it doesn't exist.
func (l *SqliteLog) EnsureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS action_log (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			task_id    TEXT NOT NULL,
			task_title TEXT NOT NULL DEFAULT '',
			user_id    TEXT NOT NULL DEFAULT '',
			action     TEXT NOT NULL,
			details    TEXT NOT NULL DEFAULT '',
			ts_micros  INTEGER NOT NULL,
			hash       TEXT NOT NULL,
			prev_hash  TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_action_log_task ON action_log(task_id, seq)`)
	return err
}

// Append stores e in its own transaction.
func (l *SqliteLog) Append(ctx context.Context, e *Entry) (*Entry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.AppendTx(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}
	return e, nil
}

// AppendTx stores e inside an existing transaction.
func (l *SqliteLog) AppendTx(ctx context.Context, tx *sql.Tx, e *Entry) error {
	if err := prepare(e, time.Now()); err != nil {
		return err
	}
	var prevHash string
	err := tx.QueryRowContext(ctx, `SELECT hash FROM action_log ORDER BY seq DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}
	if err := seal(e, prevHash); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO action_log (id, task_id, task_title, user_id, action, details, ts_micros, hash, prev_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.TaskTitle, e.UserID, string(e.Action), e.Details, e.Timestamp.UnixMicro(), e.Hash, e.PrevHash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	e.Seq, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit entry seq: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (l *SqliteLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, ts_micros, hash, prev_hash
		FROM action_log ORDER BY ts_micros DESC, seq DESC LIMIT ?`, limit)
}

// ByTask returns entries for one task, newest first.
func (l *SqliteLog) ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error) {
	return l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, ts_micros, hash, prev_hash
		FROM action_log WHERE task_id = ? ORDER BY ts_micros DESC, seq DESC LIMIT ?`, taskID, limit)
}

// Count returns the total number of entries.
func (l *SqliteLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// VerifyChain walks the whole log in insertion order and checks every link.
func (l *SqliteLog) VerifyChain(ctx context.Context) error {
	entries, err := l.scanMany(ctx, `
		SELECT seq, id, task_id, task_title, user_id, action, details, ts_micros, hash, prev_hash
		FROM action_log ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("verify chain query: %w", err)
	}
	return verify(entries)
}

func (l *SqliteLog) scanMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		var micros int64
		if err := rows.Scan(&e.Seq, &e.ID, &e.TaskID, &e.TaskTitle, &e.UserID, &action, &e.Details, &micros, &e.Hash, &e.PrevHash); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		e.Timestamp = time.UnixMicro(micros).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return entries, nil
}
