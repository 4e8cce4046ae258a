package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/mark3labs/mcp-go/mcp"
)

type rpcResponse struct {
	Result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func call(t *testing.T, handle func(context.Context, json.RawMessage) mcp.JSONRPCMessage, body string) rpcResponse {
	t.Helper()
	data, err := json.Marshal(handle(context.Background(), json.RawMessage(body)))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
	return resp
}

func TestMCPServerListsCoachTools(t *testing.T) {
	server := newMCPServer(newTestStore(t), "cli", "test")

	resp := call(t, server.HandleMessage, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	names := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		names[tool.Name] = true
		if !strings.Contains(string(tool.InputSchema), `"type":"object"`) {
			t.Errorf("%s schema = %s", tool.Name, tool.InputSchema)
		}
	}
	for _, want := range []string{agent.ToolCreateGoal, agent.ToolUpdateGoal, agent.ToolAddProgress, agent.ToolListGoals} {
		if !names[want] {
			t.Errorf("tool %s not listed", want)
		}
	}
}

func TestMCPServerCallsWriteThroughRepository(t *testing.T) {
	repo := newTestStore(t)
	server := newMCPServer(repo, "cli", "test")

	resp := call(t, server.HandleMessage, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"create_goal","arguments":{"title":"Run a marathon","targetDate":"2026-10-01"}}}`)
	if resp.Result.IsError || len(resp.Result.Content) != 1 {
		t.Fatalf("create_goal result = %+v", resp.Result)
	}
	var goal struct {
		ID         string `json:"id"`
		TargetDate string `json:"targetDate"`
	}
	if err := json.Unmarshal([]byte(resp.Result.Content[0].Text), &goal); err != nil {
		t.Fatalf("decode goal: %v", err)
	}
	if goal.ID == "" || goal.TargetDate != "2026-10-01" {
		t.Errorf("goal = %+v", goal)
	}

	goals, err := repo.ListGoals(context.Background(), "cli", "")
	if err != nil || len(goals) != 1 || goals[0].ID != goal.ID {
		t.Fatalf("stored goals = %+v, %v", goals, err)
	}
}

func TestToolHandlerReportsToolErrors(t *testing.T) {
	registry := agent.NewRegistry(agent.RepositoryCallbacks(newTestStore(t), "cli"))

	var req mcp.CallToolRequest
	req.Params.Name = agent.ToolUpdateGoal
	req.Params.Arguments = map[string]any{"goalId": "missing", "status": "completed"}

	res, err := toolHandler(registry, agent.ToolUpdateGoal)(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("result = %+v, want error result", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, `"success":false`) {
		t.Errorf("content = %+v", res.Content)
	}
}

func TestToolHandlerNoArguments(t *testing.T) {
	registry := agent.NewRegistry(agent.RepositoryCallbacks(newTestStore(t), "cli"))

	var req mcp.CallToolRequest
	req.Params.Name = agent.ToolListGoals

	res, err := toolHandler(registry, agent.ToolListGoals)(context.Background(), req)
	if err != nil || res.IsError {
		t.Fatalf("list_goals = %+v, %v", res, err)
	}
	if text := res.Content[0].(mcp.TextContent).Text; text != "[]" {
		t.Errorf("list_goals = %q, want []", text)
	}
}
