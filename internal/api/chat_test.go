package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/llm/llmtest"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func parseSSE(t *testing.T, body string) []wireEvent {
	t.Helper()
	var events []wireEvent
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		payload, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("frame without data prefix: %q", frame)
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	return events
}

func wireTypes(events []wireEvent) string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return strings.Join(types, ",")
}

func TestChatStreamMarathon(t *testing.T) {
	env := newTestEnv(t,
		llmtest.Call(llmtest.ToolCall("c1", agent.ToolCreateGoal, map[string]any{
			"title":      "Run a marathon",
			"targetDate": "2026-10-01",
		})),
		llmtest.Reply("Great goal! I've added it."),
	)

	rec := env.do(t, http.MethodPost, "/api/chat/stream", ChatRequest{Message: "I want to run a marathon by October"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if got, want := wireTypes(events), "tool_call,tool_result,content,done,conversation"; got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}

	var call agent.ToolCallData
	if err := json.Unmarshal(events[0].Data, &call); err != nil {
		t.Fatalf("tool_call data: %v", err)
	}
	if call.Name != agent.ToolCreateGoal {
		t.Errorf("tool_call name = %q", call.Name)
	}
	var result agent.ToolResultData
	if err := json.Unmarshal(events[1].Data, &result); err != nil {
		t.Fatalf("tool_result data: %v", err)
	}
	var created domain.Goal
	if err := json.Unmarshal([]byte(result.Result), &created); err != nil {
		t.Fatalf("tool result payload %q: %v", result.Result, err)
	}
	if created.Title != "Run a marathon" || created.Status != domain.GoalStatusActive {
		t.Errorf("created goal = %+v", created)
	}
	if string(events[3].Data) != "{}" {
		t.Errorf("done data = %s, want {}", events[3].Data)
	}

	var conv agent.ConversationData
	if err := json.Unmarshal(events[4].Data, &conv); err != nil {
		t.Fatalf("conversation data: %v", err)
	}
	messages, err := env.repo.ListMessages(context.Background(), conv.ConversationID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "Great goal! I've added it." {
		t.Fatalf("messages = %+v", messages)
	}

	goals, _ := env.repo.ListGoals(context.Background(), "u1", domain.GoalStatusActive)
	if len(goals) != 1 || goals[0].TargetDate == nil || *goals[0].TargetDate != "2026-10-01" {
		t.Errorf("stored goals = %+v", goals)
	}
}

func TestChatStreamModelErrorEmitsErrorEvent(t *testing.T) {
	env := newTestEnv(t, llmtest.Fail(errors.New("upstream 500")))

	rec := env.do(t, http.MethodPost, "/api/chat/stream", ChatRequest{Message: "hello"}, "")
	events := parseSSE(t, rec.Body.String())
	if got := wireTypes(events); got != "error" {
		t.Fatalf("events = %s, want error", got)
	}
	var data agent.ErrorData
	if err := json.Unmarshal(events[0].Data, &data); err != nil || data.Message == "" {
		t.Fatalf("error data = %s (%v)", events[0].Data, err)
	}
	if strings.Contains(data.Message, "upstream 500") {
		t.Errorf("provider detail leaked to client: %q", data.Message)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/chat", "/api/chat/stream"} {
		rec := env.do(t, http.MethodPost, path, ChatRequest{Message: "   "}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, rec.Code)
		}
	}
	if n := len(env.client.Requests()); n != 0 {
		t.Errorf("model called %d times for empty input", n)
	}
}

func TestChatRejectsForeignConversation(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.repo.CreateConversation(context.Background(), "owner", "Private")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/chat/stream", ChatRequest{Message: "hi", ConversationID: conv.ID}, "intruder")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChatBuffered(t *testing.T) {
	env := newTestEnv(t,
		llmtest.Reply("Hi! What would you like to work on?"),
		llmtest.Reply("Let's keep going."),
	)

	rec := env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "hello"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	first := decodeBody[struct {
		ConversationID string      `json:"conversationId"`
		Content        string      `json:"content"`
		Events         []wireEvent `json:"events"`
	}](t, rec)
	if first.ConversationID == "" || first.Content != "Hi! What would you like to work on?" {
		t.Fatalf("response = %+v", first)
	}
	if got := wireTypes(first.Events); got != "content,done,conversation" {
		t.Errorf("events = %s", got)
	}

	// A follow-up turn in the same conversation sees the first exchange.
	rec = env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "again", ConversationID: first.ConversationID}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d (%s)", rec.Code, rec.Body.String())
	}
	second := decodeBody[ChatResponse](t, rec)
	if second.ConversationID != first.ConversationID {
		t.Errorf("conversation id = %q, want %q", second.ConversationID, first.ConversationID)
	}
	reqs := env.client.Requests()
	if len(reqs) != 2 || len(reqs[1].Messages) != 3 {
		t.Fatalf("second prompt = %+v", reqs)
	}
}

func TestChatBufferedModelError(t *testing.T) {
	env := newTestEnv(t, llmtest.Fail(errors.New("rate limited")))

	rec := env.do(t, http.MethodPost, "/api/chat", ChatRequest{Message: "hello"}, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}
