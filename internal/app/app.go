// Package app wires the store, model client and chat service from configuration.
// It is shared by the HTTP server and the coachctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/config"
	"github.com/ashureev/goalcoach/internal/llm"
	"github.com/ashureev/goalcoach/internal/store"
	"github.com/ashureev/goalcoach/internal/transcript"
)

// Telemetry receives loop and chat observations. *metrics.Metrics satisfies it.
type Telemetry interface {
	agent.Observer
	agent.ChatRecorder
}

// App holds the long-lived dependencies of a process.
type App struct {
	Repo       *store.SQLiteStore
	Loop       *agent.Loop
	Chat       *agent.Service
	Transcript transcript.Logger
}

// New opens the database, builds the model client and assembles the chat
// service. telemetry may be nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, telemetry Telemetry) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	prompt, err := LoadSystemPrompt(cfg.Coach.SystemPromptPath)
	if err != nil {
		return nil, err
	}

	client, err := llm.New(ctx, llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}

	tlog, err := transcript.New(transcript.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
		MaxOpenFiles:  cfg.ConversationLog.MaxOpenFiles,
	}, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create transcript logger: %w", err)
	}

	var (
		observer agent.Observer
		recorder agent.ChatRecorder
	)
	if telemetry != nil {
		observer, recorder = telemetry, telemetry
	}

	loop := agent.NewLoop(client, agent.Config{
		Model:               cfg.LLM.Model,
		Temperature:         cfg.LLM.Temperature,
		SystemPrompt:        prompt,
		RecentProgressLimit: cfg.Coach.RecentProgressLimit,
	}, logger, observer)

	chat := agent.NewService(loop, repo, agent.ServiceOptions{
		RecentProgressLimit: cfg.Coach.RecentProgressLimit,
		Transcript:          tlog,
		Recorder:            recorder,
		Logger:              logger,
	})

	logger.Info("Coach initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"db_path", cfg.DBPath,
		"custom_prompt", cfg.Coach.SystemPromptPath != "",
	)
	return &App{Repo: repo, Loop: loop, Chat: chat, Transcript: tlog}, nil
}

// Close flushes the transcript and closes the database.
func (a *App) Close() error {
	return errors.Join(a.Transcript.Close(), a.Repo.Close())
}

// LoadSystemPrompt reads a prompt override from path, or returns the built-in
// coach prompt when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return agent.CoachPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}
