package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

func sampleRequest() Request {
	return Request{
		Model:       "test-model",
		Temperature: 0.7,
		System:      "You are a coach.",
		Messages: []Message{
			{Role: RoleSystem, Content: "Recent progress:\n- ran 3k"},
			{Role: RoleUser, Content: "make a goal"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call_1", Name: "create_goal", Arguments: json.RawMessage(`{"title":"Run"}`)},
				{ID: "call_2", Name: "list_goals", Arguments: json.RawMessage(`{}`)},
			}},
			{Role: RoleTool, ToolCallID: "call_1", Name: "create_goal", Content: `{"id":"g1"}`},
			{Role: RoleTool, ToolCallID: "call_2", Name: "list_goals", Content: `[]`},
		},
		Tools: []ToolDefinition{{Name: "list_goals", Description: "List goals", Parameters: json.RawMessage(`{"type":"object"}`)}},
	}
}

func TestBuildOpenAIRequest(t *testing.T) {
	got := buildOpenAIRequest(sampleRequest())

	if len(got.Messages) != 6 {
		t.Fatalf("got %d messages, want 6", len(got.Messages))
	}
	wantRoles := []string{
		openai.ChatMessageRoleSystem, openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant, openai.ChatMessageRoleTool, openai.ChatMessageRoleTool,
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[0].Content != "You are a coach." {
		t.Errorf("system prompt not first: %q", got.Messages[0].Content)
	}
	assistant := got.Messages[3]
	if len(assistant.ToolCalls) != 2 || assistant.ToolCalls[0].Function.Arguments != `{"title":"Run"}` {
		t.Errorf("assistant tool calls = %+v", assistant.ToolCalls)
	}
	if got.Messages[4].ToolCallID != "call_1" {
		t.Errorf("tool call id = %q, want call_1", got.Messages[4].ToolCallID)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "list_goals" {
		t.Errorf("tools = %+v", got.Tools)
	}
}

func TestBuildGeminiRequest(t *testing.T) {
	contents, cfg := buildGeminiRequest(sampleRequest())

	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 2 {
		t.Fatalf("system instruction = %+v, want prompt and directive", cfg.SystemInstruction)
	}
	if cfg.SystemInstruction.Parts[0].Text != "You are a coach." {
		t.Errorf("system prompt order wrong: %q", cfg.SystemInstruction.Parts[0].Text)
	}

	// user, model with calls, one merged function-response turn
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	if contents[1].Role != genai.RoleModel || len(contents[1].Parts) != 2 {
		t.Errorf("model turn = %+v", contents[1])
	}
	if contents[1].Parts[0].FunctionCall.Args["title"] != "Run" {
		t.Errorf("function call args = %v", contents[1].Parts[0].FunctionCall.Args)
	}
	responses := contents[2].Parts
	if len(responses) != 2 || responses[0].FunctionResponse.ID != "call_1" || responses[1].FunctionResponse.Name != "list_goals" {
		t.Errorf("function responses = %+v", responses)
	}
	if _, ok := responses[1].FunctionResponse.Response["result"]; !ok {
		t.Errorf("array result not wrapped: %v", responses[1].FunctionResponse.Response)
	}
	if len(cfg.Tools) != 1 || len(cfg.Tools[0].FunctionDeclarations) != 1 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestGeminiThoughtSignatureRoundTrip(t *testing.T) {
	sig := []byte{0x0a, 0x1b, 0x2c}
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{
			Role: genai.RoleModel,
			Parts: []*genai.Part{
				{Text: "planning", Thought: true},
				{
					FunctionCall:     &genai.FunctionCall{Name: "create_goal", Args: map[string]any{"title": "Run"}},
					ThoughtSignature: sig,
				},
			},
		}}},
	}

	decision, err := parseGeminiResponse(resp, "gemini-test")
	if err != nil {
		t.Fatalf("parseGeminiResponse() error = %v", err)
	}
	if decision.Content != "" {
		t.Errorf("thought text leaked into content: %q", decision.Content)
	}
	if len(decision.ToolCalls) != 1 || !bytes.Equal(decision.ToolCalls[0].ThoughtSignature, sig) {
		t.Fatalf("tool calls = %+v, want one call carrying the signature", decision.ToolCalls)
	}

	contents, _ := buildGeminiRequest(Request{Messages: []Message{
		{Role: RoleUser, Content: "make a goal"},
		{Role: RoleAssistant, ToolCalls: decision.ToolCalls},
		{Role: RoleTool, ToolCallID: decision.ToolCalls[0].ID, Name: "create_goal", Content: `{"id":"g1"}`},
	}})
	echoed := contents[1].Parts[0]
	if echoed.FunctionCall == nil || !bytes.Equal(echoed.ThoughtSignature, sig) {
		t.Errorf("echoed part = %+v, want function call with signature", echoed)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), ProviderConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("New() with unknown provider succeeded")
	}
	if _, err := New(context.Background(), ProviderConfig{Provider: ProviderOpenAI}); err == nil {
		t.Fatal("New() without API key succeeded")
	}
}
