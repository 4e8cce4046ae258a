package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DBPath: filepath.Join(dir, "coach.db"),
		LLM: config.LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "sk-test",
		},
		Coach: config.CoachConfig{RecentProgressLimit: 3},
		ConversationLog: config.ConversationLogConfig{
			Enabled:   true,
			Dir:       filepath.Join(dir, "logs"),
			QueueSize: 8,
		},
	}
}

func TestNewWiresDependencies(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := a.Loop.Config(); got.Model != "gpt-4o-mini" || got.RecentProgressLimit != 3 || got.SystemPrompt != agent.CoachPrompt {
		t.Errorf("loop config = %+v", got)
	}
	if err := a.Repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "llama"
	if _, err := New(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("New() succeeded with an unknown provider")
	}
}

func TestLoadSystemPrompt(t *testing.T) {
	got, err := LoadSystemPrompt("")
	if err != nil || got != agent.CoachPrompt {
		t.Fatalf("LoadSystemPrompt(\"\") = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  Be a strict running coach.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = LoadSystemPrompt(path)
	if err != nil || got != "Be a strict running coach." {
		t.Fatalf("LoadSystemPrompt(file) = %q, %v", got, err)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSystemPrompt(empty); err == nil {
		t.Error("empty prompt file accepted")
	}
	if _, err := LoadSystemPrompt(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("missing prompt file accepted")
	}
}
