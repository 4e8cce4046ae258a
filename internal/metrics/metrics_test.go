package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.ModelPass("decision", 120*time.Millisecond, nil)
	m.ModelPass("follow_up", time.Second, errors.New("timeout"))
	m.ToolExecuted("create_goal", time.Millisecond, nil)
	m.ToolExecuted("create_goal", time.Millisecond, errors.New("boom"))
	m.RecordChat("chat_sse", 2*time.Second, nil)

	if got := testutil.ToFloat64(m.ModelPasses.WithLabelValues("follow_up", "error")); got != 1 {
		t.Errorf("follow_up errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("create_goal", "ok")); got != 1 {
		t.Errorf("create_goal ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ChatRequests.WithLabelValues("chat_sse", "ok")); got != 1 {
		t.Errorf("chat_sse ok = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ToolExecuted("list_goals", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `goalcoach_agent_tool_calls_total{status="ok",tool_name="list_goals"} 1`) {
		t.Errorf("tool counter missing from exposition:\n%s", body)
	}
}
