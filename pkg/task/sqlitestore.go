package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"taskboard/pkg/audit"
)

// SqliteStore is a SQLite-backed task store for single-node deployments.
type SqliteStore struct {
	db  *sql.DB
	log *audit.SqliteLog
}

// NewSqliteStore creates a SqliteStore.
func NewSqliteStore(db *sql.DB, log *audit.SqliteLog) *SqliteStore {
	return &SqliteStore{db: db, log: log}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *SqliteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL UNIQUE,
			description    TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL DEFAULT 'Todo',
			priority       TEXT NOT NULL DEFAULT 'Medium',
			assigned_user  TEXT,
			version        INTEGER NOT NULL DEFAULT 0,
			created_micros INTEGER NOT NULL,
			updated_micros INTEGER NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_assignee_status ON tasks(assigned_user, status)`)
	return err
}

const sqliteTaskColumns = `id, title, description, status, priority, assigned_user, version, created_micros, updated_micros`

// FindByID retrieves a single task.
func (s *SqliteStore) FindByID(ctx context.Context, id string) (*Task, error) {
	t, err := scanSqliteTask(s.db.QueryRowContext(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	return t, nil
}

// FindMany returns matching tasks ordered by creation time.
func (s *SqliteStore) FindMany(ctx context.Context, f Filter) ([]Task, error) {
	where, args := sqliteWhere(f)
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks` + where + ` ORDER BY created_micros ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanSqliteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

// CountWhere counts matching tasks.
func (s *SqliteStore) CountWhere(ctx context.Context, f Filter) (int, error) {
	where, args := sqliteWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// Insert stores a new task at version 0.
func (s *SqliteStore) Insert(ctx context.Context, t *Task, entry *audit.Entry) (*Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	cp := *t
	cp.ID = uuid.Must(uuid.NewV7()).String()
	cp.Version = 0
	cp.CreatedAt = now
	cp.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+sqliteTaskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Title, cp.Description, string(cp.Status), string(cp.Priority), nilIfEmpty(cp.AssignedUser), cp.Version, now.UnixMicro(), now.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("insert task %q: %w", cp.Title, mapSqliteError(err))
	}
	if err := s.record(ctx, tx, &cp, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", cp.ID, err)
	}
	return &cp, nil
}

// ConditionalSave writes t only if the stored version equals expectedVersion.
func (s *SqliteStore) ConditionalSave(ctx context.Context, t *Task, expectedVersion int64, entry *audit.Entry) (*Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, assigned_user = ?,
		    version = version + 1, updated_micros = ?
		WHERE id = ? AND version = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), nilIfEmpty(t.AssignedUser), now.UnixMicro(), t.ID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save task %s: %w", t.ID, mapSqliteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("save task %s: %w", t.ID, err)
	}

	cur, err := scanSqliteTask(tx.QueryRowContext(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, t.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("save task %s: %w", t.ID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("save task %s: reread: %w", t.ID, err)
	}
	if n == 0 {
		return nil, &StaleWriteError{Expected: expectedVersion, Current: cur}
	}

	if err := s.record(ctx, tx, cur, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", t.ID, err)
	}
	return cur, nil
}

// DeleteByID removes a task.
func (s *SqliteStore) DeleteByID(ctx context.Context, id string, entry *audit.Entry) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	removed, err := scanSqliteTask(tx.QueryRowContext(ctx, `SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	if err := s.record(ctx, tx, removed, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete %s: %w", id, err)
	}
	return removed, nil
}

func (s *SqliteStore) record(ctx context.Context, tx *sql.Tx, t *Task, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}
	entry.TaskID = t.ID
	entry.TaskTitle = t.Title
	if err := s.log.AppendTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("append audit entry for task %s: %w", t.ID, err)
	}
	return nil
}

func sqliteWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	if f.AssignedUser != "" {
		clauses = append(clauses, "assigned_user = ?")
		args = append(args, f.AssignedUser)
	}
	if f.Title != "" {
		clauses = append(clauses, "title = ?")
		args = append(args, f.Title)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSqliteTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	var t Task
	var status, priority string
	var assignee sql.NullString
	var created, updated int64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &assignee, &t.Version, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.AssignedUser = assignee.String
	t.CreatedAt = time.UnixMicro(created).UTC()
	t.UpdatedAt = time.UnixMicro(updated).UTC()
	return &t, nil
}

func mapSqliteError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateTitle
	}
	return err
}
