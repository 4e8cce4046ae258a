// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/goalcoach/internal/domain"
)

// ErrNotFound is returned when a record does not exist or is not owned by the caller.
var ErrNotFound = domain.ErrNotFound

// Repository defines the interface for persisting conversations, goals and progress.
// Every user-scoped method filters on the owning user, so callers never see
// another user's rows.
type Repository interface {
	// CreateConversation inserts a new conversation for the user.
	CreateConversation(ctx context.Context, userID, title string) (*domain.Conversation, error)

	// GetConversation retrieves a conversation by id and owner. Returns ErrNotFound
	// when missing or owned by someone else.
	GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)

	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)

	// TouchConversation bumps the conversation's updated_at timestamp.
	TouchConversation(ctx context.Context, conversationID string) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, conversationID, userID string) error

	// AppendMessage adds a message to a conversation. ID and CreatedAt are filled in when empty.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a conversation's messages ordered by creation time ascending.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// ListGoals returns the user's goals. An empty status returns every goal.
	ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error)

	// GetGoal retrieves a goal by id and owner.
	GetGoal(ctx context.Context, goalID, userID string) (*domain.Goal, error)

	// CreateGoal inserts a goal. ID, status and timestamps are filled in when empty.
	CreateGoal(ctx context.Context, goal *domain.Goal) error

	// UpdateGoal applies a partial update to a goal owned by the user.
	UpdateGoal(ctx context.Context, goalID, userID string, patch domain.GoalPatch) (*domain.Goal, error)

	// DeleteGoal removes a goal and its progress entries.
	DeleteGoal(ctx context.Context, goalID, userID string) error

	// AddProgress records a progress entry against a goal owned by the user.
	AddProgress(ctx context.Context, userID string, entry *domain.ProgressEntry) error

	// ListProgress returns a goal's progress entries, newest first.
	ListProgress(ctx context.Context, goalID, userID string) ([]domain.ProgressEntry, error)

	// RecentProgress returns up to limit progress entries across all of the user's goals,
	// newest first.
	RecentProgress(ctx context.Context, userID string, limit int) ([]domain.ProgressEntry, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
