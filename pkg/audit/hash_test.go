package audit

import (
	"testing"
	"time"
)

func testEntry(id string) *Entry {
	return &Entry{
		ID:        id,
		TaskID:    "task-1",
		TaskTitle: "Write docs",
		UserID:    "user-1",
		Action:    ActionUpdate,
		Details:   `Task "Write docs" updated`,
		Timestamp: time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestComputeHash(t *testing.T) {
	h1, err := computeHash("", testEntry("id1"))
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := computeHash("", testEntry("id1"))
	if h1 != h2 {
		t.Fatalf("same inputs should produce same hash: %s != %s", h1, h2)
	}

	h3, _ := computeHash("", testEntry("id2"))
	if h1 == h3 {
		t.Fatalf("different ID should produce different hash")
	}

	h4, _ := computeHash("prevhash", testEntry("id1"))
	if h1 == h4 {
		t.Fatalf("different prevHash should produce different hash")
	}
}

func TestComputeHashIgnoresSeq(t *testing.T) {
	a := testEntry("id")
	b := testEntry("id")
	b.Seq = 42
	ha, _ := computeHash("", a)
	hb, _ := computeHash("", b)
	if ha != hb {
		t.Fatalf("seq is backend-assigned and must not affect the hash")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	var entries []Entry
	prev := ""
	for _, id := range []string{"a", "b", "c"} {
		e := testEntry(id)
		if err := seal(e, prev); err != nil {
			t.Fatal(err)
		}
		prev = e.Hash
		entries = append(entries, *e)
	}
	if err := verify(entries); err != nil {
		t.Fatalf("intact chain: %v", err)
	}

	entries[1].Details = "rewritten"
	if err := verify(entries); err == nil {
		t.Fatal("expected hash mismatch after editing an entry")
	}
}

func TestPrepareRejectsUnknownAction(t *testing.T) {
	e := &Entry{TaskID: "t", Action: "rename"}
	if err := prepare(e, time.Now()); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
