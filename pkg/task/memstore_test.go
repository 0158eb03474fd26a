package task

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskboard/pkg/audit"
)

func newTestMemStore() (*MemStore, *audit.MemLog) {
	log := audit.NewMemLog()
	return NewMemStore(log), log
}

func insert(t *testing.T, s Store, title string) *Task {
	t.Helper()
	tk := &Task{Title: title, Status: StatusTodo, Priority: PriorityMedium}
	got, err := s.Insert(context.Background(), tk, &audit.Entry{UserID: "u1", Action: audit.ActionCreate})
	if err != nil {
		t.Fatalf("insert %q: %v", title, err)
	}
	return got
}

func TestMemStoreInsertStartsAtVersionZero(t *testing.T) {
	s, log := newTestMemStore()
	got := insert(t, s, "Write docs")
	if got.ID == "" {
		t.Fatal("expected an assigned ID")
	}
	if got.Version != 0 {
		t.Errorf("version: want 0, got %d", got.Version)
	}
	entries, _ := log.Recent(context.Background(), 10)
	if len(entries) != 1 || entries[0].TaskID != got.ID || entries[0].TaskTitle != "Write docs" {
		t.Fatalf("expected one create entry for the task, got %+v", entries)
	}
}

func TestMemStoreDuplicateTitle(t *testing.T) {
	s, log := newTestMemStore()
	insert(t, s, "Write docs")
	_, err := s.Insert(context.Background(), &Task{Title: "Write docs"}, &audit.Entry{Action: audit.ActionCreate})
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("want ErrDuplicateTitle, got %v", err)
	}
	if n, _ := log.Count(context.Background()); n != 1 {
		t.Errorf("failed insert must not be audited; entries = %d", n)
	}
}

func TestMemStoreConditionalSave(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemStore()
	tk := insert(t, s, "Write docs")

	next := *tk
	next.Status = StatusInProgress
	saved, err := s.ConditionalSave(ctx, &next, 0, &audit.Entry{Action: audit.ActionUpdate})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Version != 1 || saved.Status != StatusInProgress {
		t.Fatalf("got version %d status %q", saved.Version, saved.Status)
	}

	stale := *tk
	stale.Title = "Other"
	_, err = s.ConditionalSave(ctx, &stale, 0, &audit.Entry{Action: audit.ActionUpdate})
	var sw *StaleWriteError
	if !errors.As(err, &sw) {
		t.Fatalf("want *StaleWriteError, got %v", err)
	}
	if !errors.Is(err, ErrVersionConflict) {
		t.Error("StaleWriteError should match ErrVersionConflict")
	}
	if sw.Current.Version != 1 || sw.Current.Status != StatusInProgress {
		t.Errorf("conflict should carry the stored task, got %+v", sw.Current)
	}
}

func TestMemStoreConditionalSaveNotFound(t *testing.T) {
	s, _ := newTestMemStore()
	_, err := s.ConditionalSave(context.Background(), &Task{ID: "missing", Title: "x"}, 0, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// TestMemStoreConcurrentSameVersion runs many writers against one version;
// exactly one may win.
func TestMemStoreConcurrentSameVersion(t *testing.T) {
	ctx := context.Background()
	s, log := newTestMemStore()
	tk := insert(t, s, "Contended")

	const writers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := *tk
			next.Description = string(rune('a' + i))
			_, err := s.ConditionalSave(ctx, &next, 0, &audit.Entry{Action: audit.ActionUpdate})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	got, _ := s.FindByID(ctx, tk.ID)
	if got.Version != 1 {
		t.Errorf("version: want 1, got %d", got.Version)
	}
	if n, _ := log.Count(ctx); n != 2 {
		t.Errorf("audit entries: want 2 (create + one update), got %d", n)
	}
}

func TestMemStoreFilters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemStore()
	a := insert(t, s, "A")
	insert(t, s, "B")
	c := insert(t, s, "C")

	for _, tk := range []*Task{a, c} {
		next := *tk
		next.AssignedUser = "alice"
		if tk == c {
			next.Status = StatusDone
		}
		if _, err := s.ConditionalSave(ctx, &next, tk.Version, nil); err != nil {
			t.Fatal(err)
		}
	}

	n, _ := s.CountWhere(ctx, Filter{AssignedUser: "alice", Statuses: ActiveStatuses})
	if n != 1 {
		t.Errorf("active load for alice: want 1, got %d", n)
	}
	all, _ := s.FindMany(ctx, Filter{})
	if len(all) != 3 || all[0].Title != "A" || all[2].Title != "C" {
		t.Errorf("FindMany should return creation order, got %v", all)
	}
	limited, _ := s.FindMany(ctx, Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit: want 2, got %d", len(limited))
	}
}

func TestMemStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, log := newTestMemStore()
	tk := insert(t, s, "Doomed")

	removed, err := s.DeleteByID(ctx, tk.ID, &audit.Entry{Action: audit.ActionDelete})
	if err != nil {
		t.Fatal(err)
	}
	if removed.Title != "Doomed" {
		t.Errorf("removed: got %q", removed.Title)
	}
	if _, err := s.FindByID(ctx, tk.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after delete, got %v", err)
	}
	if _, err := s.DeleteByID(ctx, tk.ID, &audit.Entry{Action: audit.ActionDelete}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: want ErrNotFound, got %v", err)
	}
	if n, _ := log.Count(ctx); n != 2 {
		t.Errorf("audit entries: want 2, got %d", n)
	}
}
