package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/llm"
)

// Model pass names reported to the Observer.
const (
	PassDecision = "decision"
	PassFollowUp = "follow_up"
)

// Observer receives loop telemetry.
type Observer interface {
	ModelPass(pass string, elapsed time.Duration, err error)
	ToolExecuted(name string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ModelPass(string, time.Duration, error)    {}
func (noopObserver) ToolExecuted(string, time.Duration, error) {}

// UnknownToolLabel replaces tool names the registry does not know when they
// are reported to the Observer.
const UnknownToolLabel = "unknown"

// ErrToolSkipped is fed back to the model for calls that were not run because an
// earlier call in the same turn failed in its callback.
var ErrToolSkipped = errors.New("tool not run")

// errStopped signals that the stream consumer stopped pulling events.
var errStopped = errors.New("event consumer stopped")

// Loop is the tool-augmented conversational agent. It holds no per-request
// state and may be shared across requests.
type Loop struct {
	client   llm.Client
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

// NewLoop creates a loop. A nil logger uses slog.Default and a nil observer
// discards telemetry.
func NewLoop(client llm.Client, cfg Config, logger *slog.Logger, observer Observer) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = CoachPrompt
	}
	if cfg.RecentProgressLimit <= 0 {
		cfg.RecentProgressLimit = DefaultRecentProgressLimit
	}
	return &Loop{client: client, cfg: cfg, logger: logger, observer: observer}
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// Stream runs the turn and yields tool_call, tool_result, content and done events
// in order. A loop failure is yielded once as a non-nil error after which the
// sequence ends.
func (l *Loop) Stream(ctx context.Context, turn Turn) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		_, err := l.run(ctx, turn, func(ev Event) bool {
			return yield(ev, nil)
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(Event{}, err)
		}
	}
}

// Chat runs the same two passes as Stream but returns only the final text.
func (l *Loop) Chat(ctx context.Context, turn Turn) (string, error) {
	return l.run(ctx, turn, func(Event) bool { return true })
}

func (l *Loop) run(ctx context.Context, turn Turn, emit func(Event) bool) (string, error) {
	if strings.TrimSpace(turn.Input) == "" {
		return "", ErrEmptyInput
	}
	logger := l.logger.With("user_id", turn.UserID)

	history := AssembleHistory(turn.Context, turn.History, l.cfg.RecentProgressLimit)
	messages := append(history, llm.Message{Role: llm.RoleUser, Content: turn.Input})

	decision, err := l.generate(ctx, PassDecision, messages, turn.Tools.Definitions())
	if err != nil {
		return "", err
	}

	content := decision.Content
	if len(decision.ToolCalls) > 0 {
		followUp := append(slices.Clone(messages), llm.Message{
			Role:      llm.RoleAssistant,
			Content:   decision.Content,
			ToolCalls: decision.ToolCalls,
		})

		known := turn.Tools.Names()
		for i, call := range decision.ToolCalls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if !emit(ToolCallEvent(call.Name, call.Arguments)) {
				return "", errStopped
			}

			// A dispatched tool runs to completion even if the request is abandoned.
			start := time.Now()
			result, toolErr := turn.Tools.Execute(context.WithoutCancel(ctx), call.Name, call.Arguments)
			l.observer.ToolExecuted(toolLabel(known, call.Name), time.Since(start), toolErr)
			if toolErr != nil {
				logger.Warn("tool execution failed", "tool", call.Name, "call_id", call.ID, "error", toolErr)
			} else {
				logger.Debug("tool executed", "tool", call.Name, "call_id", call.ID)
			}

			if !emit(ToolResultEvent(call.Name, result)) {
				return "", errStopped
			}
			followUp = append(followUp, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})

			if toolErr != nil && !recoverableToolError(toolErr) {
				rest := decision.ToolCalls[i+1:]
				if len(rest) > 0 {
					logger.Warn("tool sequence stopped", "tool", call.Name, "skipped", len(rest))
				}
				// Every call still needs a tool turn or providers reject the follow-up.
				skipped := errorPayload(fmt.Errorf("%w: %s failed", ErrToolSkipped, call.Name))
				for _, next := range rest {
					followUp = append(followUp, llm.Message{
						Role:       llm.RoleTool,
						Content:    skipped,
						ToolCallID: next.ID,
						Name:       next.Name,
					})
				}
				break
			}
		}

		final, err := l.generate(ctx, PassFollowUp, followUp, nil)
		if err != nil {
			return "", err
		}
		content = final.Content
	}

	if !emit(ContentEvent(content)) {
		return "", errStopped
	}
	if !emit(DoneEvent()) {
		return "", errStopped
	}
	return content, nil
}

func (l *Loop) generate(ctx context.Context, pass string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	start := time.Now()
	resp, err := l.client.Generate(ctx, llm.Request{
		Model:       l.cfg.Model,
		Temperature: l.cfg.Temperature,
		System:      l.cfg.SystemPrompt,
		Messages:    messages,
		Tools:       tools,
	})
	l.observer.ModelPass(pass, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s pass: %w", pass, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s pass: %w", ErrModel, pass, err)
	}
	return resp, nil
}

func toolLabel(known []string, name string) string {
	if slices.Contains(known, name) {
		return name
	}
	return UnknownToolLabel
}

// recoverableToolError reports whether the rest of the tool sequence may run
// after err. Bad arguments, unknown tools and missing goals are the model's
// mistake; anything else is a callback or storage failure and ends the sequence.
func recoverableToolError(err error) bool {
	return errors.Is(err, ErrInvalidArguments) ||
		errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, domain.ErrNotFound)
}
