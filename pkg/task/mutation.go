package task

import "strings"

// Mutation is an explicit set of field changes. Nil fields are left alone.
// A non-nil AssignedUser pointing at "" unassigns the task.
type Mutation struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Status       *Status   `json:"status,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	AssignedUser *string   `json:"assignedUser,omitempty"`
}

// Empty reports whether m changes nothing.
func (m Mutation) Empty() bool {
	return m.Title == nil && m.Description == nil && m.Status == nil && m.Priority == nil && m.AssignedUser == nil
}

// Validate checks the fields m sets.
func (m Mutation) Validate() error {
	if m.Title != nil {
		if err := ValidateTitle(*m.Title); err != nil {
			return err
		}
	}
	if m.Status != nil && !m.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be one of Todo, In Progress, Done"}
	}
	if m.Priority != nil && !m.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be one of Low, Medium, High"}
	}
	return nil
}

// Apply returns a copy of t with m's fields applied. Version is untouched.
func (m Mutation) Apply(t Task) Task {
	if m.Title != nil {
		t.Title = strings.TrimSpace(*m.Title)
	}
	if m.Description != nil {
		t.Description = *m.Description
	}
	if m.Status != nil {
		t.Status = *m.Status
	}
	if m.Priority != nil {
		t.Priority = *m.Priority
	}
	if m.AssignedUser != nil {
		t.AssignedUser = *m.AssignedUser
	}
	return t
}

// ValidateTitle rejects empty titles and titles that read like a column name.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	for _, s := range Statuses {
		if strings.EqualFold(title, string(s)) {
			return &ValidationError{Field: "title", Message: "cannot be Todo, In Progress, or Done"}
		}
	}
	return nil
}

// Normalize fills defaults on a new task and validates it.
func Normalize(t *Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be one of Todo, In Progress, Done"}
	}
	if !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be one of Low, Medium, High"}
	}
	return nil
}
