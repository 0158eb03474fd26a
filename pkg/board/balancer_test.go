package board

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskboard/pkg/task"
	"taskboard/pkg/user"
)

// loadStore answers CountWhere from a fixed table.
type loadStore struct {
	task.Store
	mu     sync.Mutex
	loads  map[string]int
	err    error
	filter []task.Filter
}

func (s *loadStore) CountWhere(_ context.Context, f task.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = append(s.filter, f)
	if s.err != nil {
		return 0, s.err
	}
	return s.loads[f.AssignedUser], nil
}

func users(ids ...string) []user.User {
	out := make([]user.User, len(ids))
	for i, id := range ids {
		out[i] = user.User{ID: id, Username: "user-" + id}
	}
	return out
}

func TestSelectAssigneeLeastLoaded(t *testing.T) {
	store := &loadStore{loads: map[string]int{"a": 3, "b": 1, "c": 2}}
	b := NewBalancer(store, 2)

	got, err := b.SelectAssignee(context.Background(), users("a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "b" {
		t.Errorf("want b, got %s", got)
	}
	for _, f := range store.filter {
		if len(f.Statuses) != 2 || f.Statuses[0] != task.StatusTodo || f.Statuses[1] != task.StatusInProgress {
			t.Errorf("load must count only active statuses, got %v", f.Statuses)
		}
	}
}

func TestSelectAssigneeTieBreakIsDeterministic(t *testing.T) {
	store := &loadStore{loads: map[string]int{"a": 2, "b": 0, "c": 0, "d": 0}}
	b := NewBalancer(store, 4)

	for i := 0; i < 50; i++ {
		got, err := b.SelectAssignee(context.Background(), users("d", "c", "a", "b"))
		if err != nil {
			t.Fatal(err)
		}
		if got != "b" {
			t.Fatalf("run %d: want b (smallest id among ties), got %s", i, got)
		}
	}
}

func TestSelectAssigneeNoCandidates(t *testing.T) {
	b := NewBalancer(&loadStore{}, 2)
	if _, err := b.SelectAssignee(context.Background(), nil); !errors.Is(err, ErrNoAssignee) {
		t.Fatalf("want ErrNoAssignee, got %v", err)
	}
}

func TestSelectAssigneeStoreError(t *testing.T) {
	boom := errors.New("boom")
	b := NewBalancer(&loadStore{err: boom}, 2)
	if _, err := b.SelectAssignee(context.Background(), users("a", "b")); !errors.Is(err, boom) {
		t.Fatalf("want store error, got %v", err)
	}
}

func TestSmartAssignPicksLeastLoadedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.users.Register(ctx, "alice")
	bob, _ := f.users.Register(ctx, "bob")

	busy := f.create(t, "Busy")
	if _, err := f.svc.AttemptUpdate(ctx, "actor", busy.ID, 0, task.Mutation{AssignedUser: ptr(alice.ID)}); err != nil {
		t.Fatal(err)
	}
	done := f.create(t, "Finished")
	if _, err := f.svc.AttemptUpdate(ctx, "actor", done.ID, 0, task.Mutation{AssignedUser: ptr(bob.ID), Status: ptr(task.StatusDone)}); err != nil {
		t.Fatal(err)
	}
	target := f.create(t, "Target")
	f.events()

	got, err := f.svc.SmartAssign(ctx, "actor", target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedUser != bob.ID {
		t.Errorf("finished tasks do not count toward load: want bob, got %s", got.AssignedUser)
	}
	if got.Version != 1 {
		t.Errorf("smart assign goes through the versioned path: want v1, got %d", got.Version)
	}
	if evs := f.events(); len(evs) != 1 || evs[0].Task.AssignedUser != bob.ID {
		t.Errorf("want one update event, got %+v", evs)
	}
	entries, _ := f.log.Recent(ctx, 1)
	if entries[0].Details != `Task "Target" smart-assigned to bob` {
		t.Errorf("details: %q", entries[0].Details)
	}
}

func TestSmartAssignWithoutUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.create(t, "Target")
	f.events()
	before := f.auditCount(t)

	_, err := f.svc.SmartAssign(ctx, "actor", tk.ID)
	if !errors.Is(err, ErrNoAssignee) {
		t.Fatalf("want ErrNoAssignee, got %v", err)
	}
	stored, _ := f.tasks.FindByID(ctx, tk.ID)
	if stored.Version != 0 || stored.AssignedUser != "" {
		t.Errorf("task changed: %+v", stored)
	}
	if f.auditCount(t) != before || len(f.events()) != 0 {
		t.Error("failed smart assign must not be audited or broadcast")
	}
}
