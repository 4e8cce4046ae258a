package agent

import (
	"context"
	"fmt"

	"github.com/ashureev/goalcoach/internal/domain"
)

// GoalRepository is the subset of the repository the tool callbacks write through.
type GoalRepository interface {
	ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error)
	CreateGoal(ctx context.Context, goal *domain.Goal) error
	UpdateGoal(ctx context.Context, goalID, userID string, patch domain.GoalPatch) (*domain.Goal, error)
	AddProgress(ctx context.Context, userID string, entry *domain.ProgressEntry) error
}

// RepositoryCallbacks binds the tool callbacks to repo, scoped to userID.
func RepositoryCallbacks(repo GoalRepository, userID string) Callbacks {
	return Callbacks{
		CreateGoal: func(ctx context.Context, args CreateGoalArgs) (*domain.Goal, error) {
			goal := &domain.Goal{
				UserID:      userID,
				Title:       args.Title,
				Description: args.Description,
				Status:      domain.GoalStatusActive,
				TargetDate:  args.TargetDate,
			}
			if err := repo.CreateGoal(ctx, goal); err != nil {
				return nil, fmt.Errorf("create goal: %w", err)
			}
			return goal, nil
		},
		UpdateGoal: func(ctx context.Context, args UpdateGoalArgs) (*domain.Goal, error) {
			patch := domain.GoalPatch{
				Title:       args.Title,
				Description: args.Description,
				TargetDate:  args.TargetDate,
			}
			if args.Status != nil {
				status := domain.GoalStatus(*args.Status)
				patch.Status = &status
			}
			goal, err := repo.UpdateGoal(ctx, args.GoalID, userID, patch)
			if err != nil {
				return nil, fmt.Errorf("update goal %s: %w", args.GoalID, err)
			}
			return goal, nil
		},
		AddProgress: func(ctx context.Context, args AddProgressArgs) error {
			entry := &domain.ProgressEntry{GoalID: args.GoalID, Notes: args.Notes}
			if args.Sentiment != nil {
				s := domain.Sentiment(*args.Sentiment)
				entry.Sentiment = &s
			}
			if err := repo.AddProgress(ctx, userID, entry); err != nil {
				return fmt.Errorf("add progress to goal %s: %w", args.GoalID, err)
			}
			return nil
		},
		ListGoals: func(ctx context.Context) ([]domain.Goal, error) {
			return repo.ListGoals(ctx, userID, "")
		},
	}
}
