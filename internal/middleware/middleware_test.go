package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterPerKey(t *testing.T) {
	l := NewRateLimiter(60, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("u1") || !l.Allow("u1") {
		t.Fatal("burst requests rejected")
	}
	if l.Allow("u1") {
		t.Fatal("third request allowed past the burst")
	}
	if !l.Allow("u2") {
		t.Fatal("second user throttled by the first")
	}

	now = now.Add(time.Second)
	if !l.Allow("u1") {
		t.Fatal("token not refilled after one second")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	l := NewRateLimiter(60, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("idle")
	now = now.Add(5 * time.Minute)
	l.Allow("active")
	now = now.Add(6 * time.Minute)
	l.Evict()

	if got := l.Len(); got != 1 {
		t.Fatalf("Len() = %d after eviction, want 1", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := 0
	h := RateLimit(NewRateLimiter(1, 1), func(*http.Request) string { return "u1" }, func() { limited++ })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if limited != 1 {
		t.Errorf("onLimited called %d times, want 1", limited)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/goals", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow credentials = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
		t.Errorf("allow methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow origin for foreign site = %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("simple request status = %d", rec.Code)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("wildcard granted credentials: %q", got)
	}
}
