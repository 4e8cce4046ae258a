// Package agent implements the goal coach: context assembly, the tool registry
// and the two-pass conversational loop.
package agent

import (
	"errors"

	"github.com/ashureev/goalcoach/internal/domain"
)

var (
	// ErrEmptyInput is returned when a turn carries no message text.
	ErrEmptyInput = errors.New("message is required")
	// ErrModel marks failures of the language model provider.
	ErrModel = errors.New("model provider error")
)

// Config holds loop configuration.
type Config struct {
	Model               string
	Temperature         float32
	SystemPrompt        string
	RecentProgressLimit int
}

// DefaultConfig returns default loop configuration.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-mini",
		Temperature:         0.7,
		SystemPrompt:        CoachPrompt,
		RecentProgressLimit: DefaultRecentProgressLimit,
	}
}

// Turn is one user message together with everything the loop needs to answer it.
type Turn struct {
	UserID  string
	Input   string
	History []domain.Message
	Context UserContext
	// Tools may be nil, in which case no tools are offered to the model.
	Tools *Registry
}
