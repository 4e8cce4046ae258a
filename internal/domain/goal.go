package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound reports a goal, conversation or progress target that does not
// exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// Valid reports whether s is a known goal status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusPaused, GoalStatusAbandoned:
		return true
	}
	return false
}

// Sentiment classifies how a progress entry felt to the user.
type Sentiment string

const (
	SentimentPositive    Sentiment = "positive"
	SentimentNeutral     Sentiment = "neutral"
	SentimentChallenging Sentiment = "challenging"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentChallenging:
		return true
	}
	return false
}

// Goal is a personal objective tracked for a user.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      GoalStatus `json:"status"`
	TargetDate  *string    `json:"targetDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// GoalPatch carries the fields of a partial goal update. Nil fields are left unchanged.
type GoalPatch struct {
	Title       *string
	Description *string
	Status      *GoalStatus
	TargetDate  *string
}

// Empty reports whether the patch changes nothing.
func (p GoalPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.TargetDate == nil
}

// Apply copies the set fields of p onto g.
func (p GoalPatch) Apply(g *Goal) {
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Description != nil {
		g.Description = p.Description
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.TargetDate != nil {
		g.TargetDate = p.TargetDate
	}
}

// ProgressEntry is an append-only note recorded against a goal.
type ProgressEntry struct {
	ID        string          `json:"id"`
	GoalID    string          `json:"goalId"`
	Notes     string          `json:"notes"`
	Sentiment *Sentiment      `json:"sentiment,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

const dateLayout = "2006-01-02"

// NormalizeDate accepts an ISO date or RFC 3339 timestamp and returns it as YYYY-MM-DD.
func NormalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(dateLayout), nil
	}
	return "", fmt.Errorf("invalid ISO date %q", value)
}
