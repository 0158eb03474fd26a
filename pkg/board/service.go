// Package board is the synchronization core of the task board. It owns
// every write to a task: version checks, conflict resolution, smart
// assignment, the audit entry that accompanies each accepted mutation and
// the broadcast that follows it.
package board

import (
	"context"
	"errors"
	"fmt"

	"taskboard/internal/logging"
	"taskboard/pkg/audit"
	"taskboard/pkg/broadcast"
	"taskboard/pkg/task"
	"taskboard/pkg/user"
)

// Service coordinates the task store, user store, action log and hub.
type Service struct {
	tasks    task.Store
	users    user.Store
	actions  audit.Log
	hub      *broadcast.Hub
	balancer *Balancer
	log      *logging.Logger
}

// New creates a Service. maxWorkers bounds the concurrent load queries
// made by smart assignment.
func New(tasks task.Store, users user.Store, actions audit.Log, hub *broadcast.Hub, log *logging.Logger, maxWorkers int) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{
		tasks:    tasks,
		users:    users,
		actions:  actions,
		hub:      hub,
		balancer: NewBalancer(tasks, maxWorkers),
		log:      log.WithComponent("board"),
	}
}

// Hub returns the broadcaster the service publishes to.
func (s *Service) Hub() *broadcast.Hub { return s.hub }

// TaskView is a task with its assignee resolved.
type TaskView struct {
	task.Task
	Assignee *user.Summary `json:"assignedUser"`
}

// Activity is an action log entry with the actor's username resolved.
type Activity struct {
	audit.Entry
	Username string `json:"username"`
}

// Stats summarizes board state for the status endpoint.
type Stats struct {
	Tasks       int    `json:"tasks"`
	Users       int    `json:"users"`
	Actions     int    `json:"actions"`
	Subscribers int    `json:"subscribers"`
	LastSeq     uint64 `json:"lastSeq"`
}

// CreateTask stores a new task at version 0 and announces it.
func (s *Service) CreateTask(ctx context.Context, actorID string, in task.Mutation) (*task.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, in.AssignedUser); err != nil {
		return nil, err
	}
	t := in.Apply(task.Task{})
	if err := task.Normalize(&t); err != nil {
		return nil, err
	}

	entry := &audit.Entry{
		UserID:  actorID,
		Action:  audit.ActionCreate,
		Details: fmt.Sprintf("Task %q created", t.Title),
	}
	created, err := s.tasks.Insert(ctx, &t, entry)
	if err != nil {
		return nil, err
	}
	s.publish(broadcast.ActionCreate, created)
	s.log.WithTask(created.ID).Info("task created", "actor", actorID, "title", created.Title)
	return created, nil
}

// ListTasks returns every task with assignees resolved.
func (s *Service) ListTasks(ctx context.Context) ([]TaskView, error) {
	tasks, err := s.tasks.FindMany(ctx, task.Filter{})
	if err != nil {
		return nil, err
	}
	names, err := s.usernames(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = view(t, names)
	}
	return views, nil
}

// GetTask returns one task with its assignee resolved.
func (s *Service) GetTask(ctx context.Context, id string) (*TaskView, error) {
	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	names, err := s.usernames(ctx)
	if err != nil {
		return nil, err
	}
	v := view(*t, names)
	return &v, nil
}

// DeleteTask removes a task unconditionally. A missing task yields
// task.ErrNotFound with no audit entry and no broadcast.
func (s *Service) DeleteTask(ctx context.Context, actorID, id string) error {
	existing, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return err
	}
	entry := &audit.Entry{
		UserID:  actorID,
		Action:  audit.ActionDelete,
		Details: fmt.Sprintf("Task %q deleted", existing.Title),
	}
	removed, err := s.tasks.DeleteByID(ctx, id, entry)
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(broadcast.Event{Action: broadcast.ActionDelete, TaskID: removed.ID})
	}
	s.log.WithTask(id).Info("task deleted", "actor", actorID)
	return nil
}

// RecentActivity returns the newest action log entries.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	entries, err := s.actions.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.activities(ctx, entries)
}

// History returns the action log entries for one task, newest first.
func (s *Service) History(ctx context.Context, taskID string, limit int) ([]Activity, error) {
	entries, err := s.actions.ByTask(ctx, taskID, limit)
	if err != nil {
		return nil, err
	}
	return s.activities(ctx, entries)
}

// RegisterUser creates a user, or returns the existing one with that name.
func (s *Service) RegisterUser(ctx context.Context, username string) (*user.User, error) {
	u, err := s.users.Register(ctx, username)
	if err != nil {
		return nil, err
	}
	s.log.Debug("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// ListUsers returns every user ordered by ID.
func (s *Service) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.users.List(ctx)
}

// Stats counts tasks, users, log entries and live subscribers.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Tasks, err = s.tasks.CountWhere(ctx, task.Filter{}); err != nil {
		return st, err
	}
	if st.Users, err = s.users.Count(ctx); err != nil {
		return st, err
	}
	if st.Actions, err = s.actions.Count(ctx); err != nil {
		return st, err
	}
	if s.hub != nil {
		st.Subscribers = s.hub.Len()
		st.LastSeq = s.hub.Seq()
	}
	return st, nil
}

func (s *Service) publish(action broadcast.Action, t *task.Task) {
	if s.hub == nil {
		return
	}
	e, n := s.hub.Publish(broadcast.Event{Action: action, Task: t})
	s.log.Debug("change published", "seq", e.Seq, "action", string(action), "task_id", t.ID, "delivered", n)
}

// checkAssignee rejects an assignment to a user that does not exist.
func (s *Service) checkAssignee(ctx context.Context, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	if _, err := s.users.Get(ctx, *id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return &task.ValidationError{Field: "assignedUser", Message: "unknown user"}
		}
		return err
	}
	return nil
}

func (s *Service) usernames(ctx context.Context) (map[string]string, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

func (s *Service) activities(ctx context.Context, entries []audit.Entry) ([]Activity, error) {
	names, err := s.usernames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Activity, len(entries))
	for i, e := range entries {
		name, ok := names[e.UserID]
		if !ok {
			name = "unknown"
		}
		out[i] = Activity{Entry: e, Username: name}
	}
	return out, nil
}

func view(t task.Task, names map[string]string) TaskView {
	v := TaskView{Task: t}
	if t.AssignedUser != "" {
		v.Assignee = &user.Summary{ID: t.AssignedUser, Username: names[t.AssignedUser]}
	}
	return v
}
