package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/llm"
)

// DefaultRecentProgressLimit caps progress notes included in the prompt, across all goals.
const DefaultRecentProgressLimit = 5

const (
	goalsDirectiveHeader    = "The user's active goals (use these IDs when calling tools):"
	progressDirectiveHeader = "The user's most recent progress notes, newest first:"
)

// UserContext is the read-side slice of user state given to the loop.
type UserContext struct {
	// Goals holds the user's active goals.
	Goals []domain.Goal
	// Progress holds recent progress entries, newest first.
	Progress []domain.ProgressEntry
}

// ContextSource is the subset of the repository the context assembler reads from.
type ContextSource interface {
	ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error)
	RecentProgress(ctx context.Context, userID string, limit int) ([]domain.ProgressEntry, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// GatherContext loads active goals, recent progress and, when conversationID is
// set, the conversation history for one user.
func GatherContext(ctx context.Context, src ContextSource, userID, conversationID string, progressLimit int) (UserContext, []domain.Message, error) {
	goals, err := src.ListGoals(ctx, userID, domain.GoalStatusActive)
	if err != nil {
		return UserContext{}, nil, fmt.Errorf("list active goals: %w", err)
	}
	progress, err := src.RecentProgress(ctx, userID, progressLimit)
	if err != nil {
		return UserContext{}, nil, fmt.Errorf("list recent progress: %w", err)
	}

	var history []domain.Message
	if conversationID != "" {
		history, err = src.ListMessages(ctx, conversationID)
		if err != nil {
			return UserContext{}, nil, fmt.Errorf("list messages: %w", err)
		}
	}
	return UserContext{Goals: goals, Progress: progress}, history, nil
}

// GoalsDirective renders the active goals directive, or "" when there are none.
func GoalsDirective(goals []domain.Goal) string {
	if len(goals) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(goalsDirectiveHeader)
	for _, g := range goals {
		description := "No description"
		if g.Description != nil && *g.Description != "" {
			description = *g.Description
		}
		fmt.Fprintf(&b, "\n- [ID: %s] %s: %s (Status: %s)", g.ID, g.Title, description, g.Status)
	}
	return b.String()
}

// ProgressDirective renders up to limit progress notes, or "" when there are none.
func ProgressDirective(progress []domain.ProgressEntry, limit int) string {
	if limit > 0 && len(progress) > limit {
		progress = progress[:limit]
	}
	if len(progress) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(progressDirectiveHeader)
	for _, p := range progress {
		fmt.Fprintf(&b, "\n- %s", p.Notes)
	}
	return b.String()
}

// AssembleHistory builds the enhanced history: the progress directive, then the
// goals directive, then every prior turn in order. The goals directive sits
// closest to the conversation so goal ids stay salient.
func AssembleHistory(uc UserContext, history []domain.Message, progressLimit int) []llm.Message {
	out := make([]llm.Message, 0, len(history)+2)
	if d := ProgressDirective(uc.Progress, progressLimit); d != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: d})
	}
	if d := GoalsDirective(uc.Goals); d != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: d})
	}
	for _, m := range history {
		out = append(out, llm.Message{Role: mapRole(m.Role), Content: m.Content})
	}
	return out
}

func mapRole(r domain.Role) llm.Role {
	switch r {
	case domain.RoleAssistant:
		return llm.RoleAssistant
	case domain.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}
