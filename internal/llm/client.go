// Package llm defines a provider-neutral chat completion client with tool calling.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any candidate.
var ErrEmptyResponse = errors.New("model returned no choices")

// Role is the author of a message sent to a model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	// ThoughtSignature is opaque provider state that must be echoed back
	// with the call on the next request. Only Gemini sets it.
	ThoughtSignature []byte `json:"thoughtSignature,omitempty"`
}

// Message is one entry of the prompt history.
//
// Assistant messages may carry ToolCalls; tool messages carry the result of the
// call identified by ToolCallID in Content.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition advertises a callable tool and its JSON schema.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a single model invocation.
type Request struct {
	Model       string
	Temperature float32
	System      string
	Messages    []Message
	Tools       []ToolDefinition
}

// Response is the outcome of a model invocation.
type Response struct {
	Content          string
	ToolCalls        []ToolCall
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client generates chat completions.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
