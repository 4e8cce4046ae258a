package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/goalcoach/internal/domain"
)

var errGoalNotFound = fmt.Errorf("goal %w", domain.ErrNotFound)

// memRepo is an in-memory GoalRepository for a single test.
type memRepo struct {
	mu       sync.Mutex
	goals    []domain.Goal
	progress []domain.ProgressEntry
	writes   int
	seq      int
}

func (r *memRepo) ListGoals(_ context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Goal{}
	for _, g := range r.goals {
		if g.UserID == userID && (status == "" || g.Status == status) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memRepo) CreateGoal(_ context.Context, goal *domain.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.writes++
	goal.ID = fmt.Sprintf("goal-%d", r.seq)
	goal.CreatedAt = time.Date(2026, 1, 1, 0, 0, r.seq, 0, time.UTC)
	goal.UpdatedAt = goal.CreatedAt
	r.goals = append(r.goals, *goal)
	return nil
}

func (r *memRepo) UpdateGoal(_ context.Context, goalID, userID string, patch domain.GoalPatch) (*domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.goals {
		if r.goals[i].ID == goalID && r.goals[i].UserID == userID {
			r.writes++
			patch.Apply(&r.goals[i])
			g := r.goals[i]
			return &g, nil
		}
	}
	return nil, errGoalNotFound
}

func (r *memRepo) AddProgress(_ context.Context, userID string, entry *domain.ProgressEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.goals {
		if g.ID == entry.GoalID && g.UserID == userID {
			r.writes++
			r.progress = append(r.progress, *entry)
			return nil
		}
	}
	return errGoalNotFound
}
