package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ashureev/goalcoach/internal/domain"
)

func createGoal(t *testing.T, env *testEnv, body any, user string) domain.Goal {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/goals", body, user)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Goal](t, rec)
}

func TestGoalCRUD(t *testing.T) {
	env := newTestEnv(t)

	goal := createGoal(t, env, map[string]any{"title": "  Read 12 books  ", "targetDate": "2026-12-31T00:00:00Z"}, "")
	if goal.Title != "Read 12 books" || goal.Status != domain.GoalStatusActive {
		t.Fatalf("created = %+v", goal)
	}
	if goal.TargetDate == nil || *goal.TargetDate != "2026-12-31" {
		t.Errorf("targetDate = %v", goal.TargetDate)
	}

	rec := env.do(t, http.MethodPatch, "/api/goals/"+goal.ID, map[string]any{"status": "paused"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d (%s)", rec.Code, rec.Body.String())
	}
	updated := decodeBody[domain.Goal](t, rec)
	if updated.Status != domain.GoalStatusPaused || updated.Title != "Read 12 books" {
		t.Errorf("updated = %+v", updated)
	}

	rec = env.do(t, http.MethodGet, "/api/goals?status=active", nil, "")
	if active := decodeBody[[]domain.Goal](t, rec); len(active) != 0 {
		t.Errorf("active goals = %+v, want none", active)
	}
	rec = env.do(t, http.MethodGet, "/api/goals", nil, "")
	if all := decodeBody[[]domain.Goal](t, rec); len(all) != 1 {
		t.Errorf("all goals = %+v", all)
	}

	rec = env.do(t, http.MethodDelete, "/api/goals/"+goal.ID, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/goals/"+goal.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestGoalValidation(t *testing.T) {
	env := newTestEnv(t)
	goal := createGoal(t, env, map[string]any{"title": "Meditate"}, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"missing title", http.MethodPost, "/api/goals", map[string]any{"description": "x"}},
		{"blank title", http.MethodPost, "/api/goals", map[string]any{"title": "   "}},
		{"bad status", http.MethodPost, "/api/goals", map[string]any{"title": "x", "status": "done"}},
		{"bad date", http.MethodPost, "/api/goals", map[string]any{"title": "x", "targetDate": "soon"}},
		{"blank title patch", http.MethodPatch, "/api/goals/" + goal.ID, map[string]any{"title": "  "}},
		{"empty patch", http.MethodPatch, "/api/goals/" + goal.ID, map[string]any{}},
		{"bad list filter", http.MethodGet, "/api/goals?status=done", nil},
		{"missing notes", http.MethodPost, "/api/goals/" + goal.ID + "/progress", map[string]any{"sentiment": "positive"}},
		{"bad sentiment", http.MethodPost, "/api/goals/" + goal.ID + "/progress", map[string]any{"notes": "x", "sentiment": "meh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGoalOwnership(t *testing.T) {
	env := newTestEnv(t)
	goal := createGoal(t, env, map[string]any{"title": "Private goal"}, "owner")

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/goals/" + goal.ID, nil},
		{http.MethodPatch, "/api/goals/" + goal.ID, map[string]any{"title": "hijacked"}},
		{http.MethodDelete, "/api/goals/" + goal.ID, nil},
		{http.MethodGet, "/api/goals/" + goal.ID + "/progress", nil},
		{http.MethodPost, "/api/goals/" + goal.ID + "/progress", map[string]any{"notes": "not mine"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body, "intruder")
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/goals/"+goal.ID, nil, "owner")
	if got := decodeBody[domain.Goal](t, rec); got.Title != "Private goal" {
		t.Errorf("owner sees %+v", got)
	}
}

func TestProgressEntries(t *testing.T) {
	env := newTestEnv(t)
	goal := createGoal(t, env, map[string]any{"title": "Run 5k"}, "")

	for _, notes := range []string{"ran 2k", "ran 3k"} {
		rec := env.do(t, http.MethodPost, "/api/goals/"+goal.ID+"/progress",
			map[string]any{"notes": notes, "sentiment": "positive", "metadata": map[string]any{"km": 2}}, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("add progress status = %d (%s)", rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, "/api/goals/"+goal.ID+"/progress", nil, "")
	entries := decodeBody[[]domain.ProgressEntry](t, rec)
	if len(entries) != 2 || entries[0].Notes != "ran 3k" {
		t.Fatalf("entries = %+v, want newest first", entries)
	}
	if entries[0].Sentiment == nil || *entries[0].Sentiment != domain.SentimentPositive {
		t.Errorf("sentiment = %v", entries[0].Sentiment)
	}
}

func TestConversationRoutes(t *testing.T) {
	env := newTestEnv(t)
	conv := createConversationWithMessage(t, env, "owner")

	rec := env.do(t, http.MethodGet, "/api/conversations", nil, "owner")
	if list := decodeBody[[]domain.Conversation](t, rec); len(list) != 1 || list[0].ID != conv.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID, nil, "owner")
	detail := decodeBody[ConversationDetail](t, rec)
	if detail.ID != conv.ID || len(detail.Messages) != 1 {
		t.Fatalf("detail = %+v", detail)
	}

	if rec := env.do(t, http.MethodGet, "/api/conversations/"+conv.ID, nil, "intruder"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign get = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, nil, "intruder"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, nil, "owner"); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/conversations", nil, "owner")
	if list := decodeBody[[]domain.Conversation](t, rec); len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func createConversationWithMessage(t *testing.T, env *testEnv, user string) *domain.Conversation {
	t.Helper()
	ctx := t.Context()
	conv, err := env.repo.CreateConversation(ctx, user, "Planning")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := env.repo.AppendMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	return conv
}
