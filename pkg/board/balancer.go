package board

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"taskboard/pkg/audit"
	"taskboard/pkg/task"
	"taskboard/pkg/user"
)

// Balancer picks the least-loaded user for smart assignment.
type Balancer struct {
	tasks      task.Store
	maxWorkers int
}

// NewBalancer creates a Balancer that runs at most maxWorkers load
// queries at once.
func NewBalancer(tasks task.Store, maxWorkers int) *Balancer {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Balancer{tasks: tasks, maxWorkers: maxWorkers}
}

// Load is a user's count of unfinished assigned tasks.
type Load struct {
	UserID string
	Active int
}

// Loads counts active tasks for every candidate concurrently.
func (b *Balancer) Loads(ctx context.Context, candidates []user.User) ([]Load, error) {
	p := pool.NewWithResults[Load]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(b.maxWorkers)
	for _, u := range candidates {
		p.Go(func(ctx context.Context) (Load, error) {
			n, err := b.tasks.CountWhere(ctx, task.Filter{AssignedUser: u.ID, Statuses: task.ActiveStatuses})
			if err != nil {
				return Load{}, fmt.Errorf("count load for user %s: %w", u.ID, err)
			}
			return Load{UserID: u.ID, Active: n}, nil
		})
	}
	return p.Wait()
}

// SelectAssignee returns the candidate with the fewest active tasks. Ties
// go to the smallest user ID, which for time-ordered IDs is the longest
// registered user.
func (b *Balancer) SelectAssignee(ctx context.Context, candidates []user.User) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAssignee
	}
	loads, err := b.Loads(ctx, candidates)
	if err != nil {
		return "", err
	}
	best := loads[0]
	for _, l := range loads[1:] {
		if l.Active < best.Active || (l.Active == best.Active && l.UserID < best.UserID) {
			best = l
		}
	}
	return best.UserID, nil
}

// SmartAssign assigns a task to the least-loaded user through the normal
// versioned update path.
func (s *Service) SmartAssign(ctx context.Context, actorID, taskID string) (*task.Task, error) {
	stored, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	id, err := s.balancer.SelectAssignee(ctx, users)
	if err != nil {
		return nil, err
	}
	var username string
	for _, u := range users {
		if u.ID == id {
			username = u.Username
			break
		}
	}

	m := task.Mutation{AssignedUser: &id}
	next := m.Apply(*stored)
	return s.commit(ctx, &next, stored.Version, m, &audit.Entry{
		UserID:  actorID,
		Action:  audit.ActionAssign,
		Details: fmt.Sprintf("Task %q smart-assigned to %s", stored.Title, username),
	})
}
