// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ashureev/goalcoach/internal/llm"
)

// ErrScriptExhausted is returned when Generate is called more times than scripted.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply. A non-nil Err is returned instead of the response.
type Step struct {
	Response llm.Response
	Err      error
}

// Client replays scripted steps in order and records every request it receives.
type Client struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

// New returns a client that replays steps.
func New(steps ...Step) *Client {
	return &Client{steps: steps}
}

// Reply is a step answering with plain text.
func Reply(content string) Step {
	return Step{Response: llm.Response{Content: content}}
}

// Call is a step requesting the given tool calls.
func Call(calls ...llm.ToolCall) Step {
	return Step{Response: llm.Response{ToolCalls: calls}}
}

// Fail is a step returning err.
func Fail(err error) Step {
	return Step{Err: err}
}

// ToolCall builds a tool call with args marshaled to JSON.
func ToolCall(id, name string, args any) llm.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := step.Response
	return &resp, nil
}

// Requests returns a copy of the requests received so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}
