package task

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"taskboard/pkg/audit"
)

func newTestSqliteStore(t *testing.T) (*SqliteStore, *audit.SqliteLog) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	log := audit.NewSqliteLog(db)
	if err := log.EnsureTable(context.Background()); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	s := NewSqliteStore(db, log)
	if err := s.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, log
}

func TestSqliteStoreConditionalSave(t *testing.T) {
	ctx := context.Background()
	s, log := newTestSqliteStore(t)
	tk := insert(t, s, "Write docs")

	next := *tk
	next.AssignedUser = "alice"
	saved, err := s.ConditionalSave(ctx, &next, 0, &audit.Entry{UserID: "u1", Action: audit.ActionAssign})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Version != 1 || saved.AssignedUser != "alice" {
		t.Fatalf("got %+v", saved)
	}

	_, err = s.ConditionalSave(ctx, &next, 0, &audit.Entry{Action: audit.ActionUpdate})
	var sw *StaleWriteError
	if !errors.As(err, &sw) || sw.Current.Version != 1 {
		t.Fatalf("want stale write carrying version 1, got %v", err)
	}

	if n, _ := s.CountWhere(ctx, Filter{AssignedUser: "alice", Statuses: ActiveStatuses}); n != 1 {
		t.Errorf("active load: want 1, got %d", n)
	}
	if n, _ := log.Count(ctx); n != 2 {
		t.Errorf("audit entries: want 2, got %d", n)
	}
	if err := log.VerifyChain(ctx); err != nil {
		t.Errorf("verify chain: %v", err)
	}
}

func TestSqliteStoreDuplicateTitleAndDelete(t *testing.T) {
	ctx := context.Background()
	s, log := newTestSqliteStore(t)
	tk := insert(t, s, "Only once")

	_, err := s.Insert(ctx, &Task{Title: "Only once", Status: StatusTodo, Priority: PriorityLow}, &audit.Entry{Action: audit.ActionCreate})
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("want ErrDuplicateTitle, got %v", err)
	}

	if _, err := s.DeleteByID(ctx, tk.ID, &audit.Entry{Action: audit.ActionDelete}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteByID(ctx, tk.ID, &audit.Entry{Action: audit.ActionDelete}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if n, _ := log.Count(ctx); n != 2 {
		t.Errorf("audit entries: want 2 (create, delete), got %d", n)
	}
}
