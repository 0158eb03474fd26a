package user

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreRegisterIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	a, err := s.Register(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Register(ctx, "  alice ")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != again.ID {
		t.Fatalf("register should be idempotent on username: %s != %s", a.ID, again.ID)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("count: want 1, got %d", n)
	}
}

func TestMemStoreRegisterRejectsBlank(t *testing.T) {
	if _, err := NewMemStore().Register(context.Background(), "   "); err == nil {
		t.Fatal("blank username accepted")
	}
}

func TestMemStoreLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	a, _ := s.Register(ctx, "alice")
	b, _ := s.Register(ctx, "bob")

	got, err := s.ByUsername(ctx, "bob")
	if err != nil || got.ID != b.ID {
		t.Fatalf("ByUsername(bob): %v %v", got, err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("List should be ordered by ID (registration order): %+v", list)
	}
}
