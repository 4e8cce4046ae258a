package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "2m")
	t.Setenv("COACH_RECENT_PROGRESS_LIMIT", "5")
	t.Setenv("AUTH_JWKS_URL", "")
	t.Setenv("AUTH_REQUIRED_SCOPE", "")
	t.Setenv("FRONTEND_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChatTimeout != 2*time.Minute {
		t.Errorf("ChatTimeout = %v, want 2m", cfg.ChatTimeout)
	}
	if cfg.Coach.RecentProgressLimit != 5 {
		t.Errorf("RecentProgressLimit = %d, want 5", cfg.Coach.RecentProgressLimit)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled() = true without a JWKS URL")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false without FRONTEND_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("COACH_RECENT_PROGRESS_LIMIT", "8")
	t.Setenv("ALLOWED_ORIGINS", "https://coach.example.com, https://admin.example.com")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "45s")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "LLM_MODEL") {
		t.Fatalf("Load() error = %v, want LLM_MODEL error for explicit empty model", err)
	}

	t.Setenv("LLM_MODEL", "gemini-2.5-pro")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.LLM.Provider)
	}
	if cfg.Coach.RecentProgressLimit != 8 {
		t.Errorf("RecentProgressLimit = %d, want 8", cfg.Coach.RecentProgressLimit)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.ChatTimeout != 45*time.Second {
		t.Errorf("ChatTimeout = %v, want 45s", cfg.ChatTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:        "8080",
			DBPath:      "coach.db",
			ChatTimeout: time.Minute,
			LLM:         LLMConfig{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.7},
			Coach:       CoachConfig{RecentProgressLimit: 5},
			RateLimit:   RateLimitConfig{RequestsPerMinute: 10, Burst: 2},
			ConversationLog: ConversationLogConfig{
				Dir:          "logs",
				GlobalPath:   "logs/all.ndjson",
				QueueSize:    10,
				MaxOpenFiles: 16,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, "LLM_PROVIDER"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "LLM_TEMPERATURE"},
		{"progress limit", func(c *Config) { c.Coach.RecentProgressLimit = 0 }, "COACH_RECENT_PROGRESS_LIMIT"},
		{"scope without jwks", func(c *Config) { c.Auth.RequiredScope = "coach:chat" }, "AUTH_REQUIRED_SCOPE"},
		{"rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, "CHAT_RATE_LIMIT"},
		{"timeout", func(c *Config) { c.ChatTimeout = 0 }, "CHAT_REQUEST_TIMEOUT"},
		{"open transcript files", func(c *Config) { c.ConversationLog.MaxOpenFiles = 0 }, "CONVERSATION_LOG_MAX_OPEN_FILES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
