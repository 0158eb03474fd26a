package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskboard/pkg/audit"
)

const taskColumns = `id, title, description, status, priority, assigned_user, version, created_at, updated_at`

// PgStore is a PostgreSQL-backed task store. Audit entries go through log
// inside the same transaction as the task write.
type PgStore struct {
	pool *pgxpool.Pool
	log  *audit.PgLog
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool, log *audit.PgLog) *PgStore {
	return &PgStore{pool: pool, log: log}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL UNIQUE,
			description   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'Todo',
			priority      TEXT NOT NULL DEFAULT 'Medium',
			assigned_user TEXT,
			version       BIGINT NOT NULL DEFAULT 0 CHECK (version >= 0),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_assignee_status ON tasks(assigned_user, status) WHERE assigned_user IS NOT NULL`)
	return err
}

// FindByID retrieves a single task.
func (s *PgStore) FindByID(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	return t, nil
}

// FindMany returns matching tasks ordered by creation time.
func (s *PgStore) FindMany(ctx context.Context, f Filter) ([]Task, error) {
	where, args := pgWhere(f)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
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
func (s *PgStore) CountWhere(ctx context.Context, f Filter) (int, error) {
	where, args := pgWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// Insert stores a new task at version 0.
func (s *PgStore) Insert(ctx context.Context, t *Task, entry *audit.Entry) (*Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	cp := *t
	cp.ID = uuid.Must(uuid.NewV7()).String()
	cp.Version = 0
	cp.CreatedAt = now
	cp.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cp.ID, cp.Title, cp.Description, string(cp.Status), string(cp.Priority), nilIfEmpty(cp.AssignedUser), cp.Version, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task %q: %w", cp.Title, mapPgError(err))
	}
	if err := s.record(ctx, tx, &cp, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", cp.ID, err)
	}
	return &cp, nil
}

// ConditionalSave writes t only if the stored version equals expectedVersion.
// The version check and the write are one UPDATE statement.
func (s *PgStore) ConditionalSave(ctx context.Context, t *Task, expectedVersion int64, entry *audit.Entry) (*Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	saved, err := scanTask(tx.QueryRow(ctx, `
		UPDATE tasks
		SET title = $3, description = $4, status = $5, priority = $6, assigned_user = $7,
		    version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
		RETURNING `+taskColumns,
		t.ID, expectedVersion, t.Title, t.Description, string(t.Status), string(t.Priority), nilIfEmpty(t.AssignedUser), now))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, cerr := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, t.ID))
		if errors.Is(cerr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("save task %s: %w", t.ID, ErrNotFound)
		}
		if cerr != nil {
			return nil, fmt.Errorf("save task %s: reread: %w", t.ID, cerr)
		}
		return nil, &StaleWriteError{Expected: expectedVersion, Current: cur}
	}
	if err != nil {
		return nil, fmt.Errorf("save task %s: %w", t.ID, mapPgError(err))
	}

	if err := s.record(ctx, tx, saved, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", t.ID, err)
	}
	return saved, nil
}

// DeleteByID removes a task.
func (s *PgStore) DeleteByID(ctx context.Context, id string, entry *audit.Entry) (*Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	removed, err := scanTask(tx.QueryRow(ctx, `DELETE FROM tasks WHERE id = $1 RETURNING `+taskColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	if err := s.record(ctx, tx, removed, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete %s: %w", id, err)
	}
	return removed, nil
}

func (s *PgStore) record(ctx context.Context, tx pgx.Tx, t *Task, entry *audit.Entry) error {
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

func pgWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	if f.AssignedUser != "" {
		args = append(args, f.AssignedUser)
		clauses = append(clauses, fmt.Sprintf("assigned_user = $%d", len(args)))
	}
	if f.Title != "" {
		args = append(args, f.Title)
		clauses = append(clauses, fmt.Sprintf("title = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var status, priority string
	var assignee *string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &assignee, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if assignee != nil {
		t.AssignedUser = *assignee
	}
	return &t, nil
}

// mapPgError turns a unique violation on title into ErrDuplicateTitle.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTitle
	}
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
