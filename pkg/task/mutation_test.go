package task

import (
	"errors"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestValidateTitle(t *testing.T) {
	for _, title := range []string{"", "   ", "Todo", "in progress", "DONE"} {
		err := ValidateTitle(title)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "title" {
			t.Errorf("ValidateTitle(%q): want title ValidationError, got %v", title, err)
		}
	}
	if err := ValidateTitle("Ship release"); err != nil {
		t.Errorf("valid title rejected: %v", err)
	}
}

func TestMutationApply(t *testing.T) {
	base := Task{ID: "t", Title: "Old", Description: "keep", Status: StatusTodo, Priority: PriorityLow, AssignedUser: "u1", Version: 3}
	got := Mutation{Title: ptr("  New  "), AssignedUser: ptr("")}.Apply(base)

	if got.Title != "New" {
		t.Errorf("title: got %q", got.Title)
	}
	if got.Description != "keep" || got.Status != StatusTodo || got.Priority != PriorityLow {
		t.Errorf("unset fields must be unchanged: %+v", got)
	}
	if got.AssignedUser != "" {
		t.Errorf("empty assignee pointer should unassign, got %q", got.AssignedUser)
	}
	if got.Version != 3 {
		t.Errorf("Apply must not touch version")
	}
}

func TestMutationValidate(t *testing.T) {
	if err := (Mutation{Status: ptr(Status("Blocked"))}).Validate(); err == nil {
		t.Error("unknown status accepted")
	}
	if err := (Mutation{Priority: ptr(Priority("Urgent"))}).Validate(); err == nil {
		t.Error("unknown priority accepted")
	}
	if err := (Mutation{Status: ptr(StatusDone), Priority: ptr(PriorityHigh)}).Validate(); err != nil {
		t.Errorf("valid mutation rejected: %v", err)
	}
	if !(Mutation{}).Empty() {
		t.Error("zero mutation should be empty")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	tk := &Task{Title: " Plan sprint "}
	if err := Normalize(tk); err != nil {
		t.Fatal(err)
	}
	if tk.Title != "Plan sprint" || tk.Status != StatusTodo || tk.Priority != PriorityMedium {
		t.Errorf("defaults not applied: %+v", tk)
	}
}
