package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/transcript"
)

// ChatStore is the repository surface a chat turn reads from and writes to.
type ChatStore interface {
	ContextSource
	GoalRepository
	CreateConversation(ctx context.Context, userID, title string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error
	AppendMessage(ctx context.Context, msg *domain.Message) error
}

// ChatRecorder receives one observation per finished chat turn.
type ChatRecorder interface {
	RecordChat(channel string, elapsed time.Duration, err error)
}

// ChatRequest is one user message arriving on a transport.
type ChatRequest struct {
	UserID         string
	SessionID      string
	ConversationID string
	Message        string
	Channel        string
	RequestID      string
}

// ChatResult is the outcome of a non-streaming turn.
type ChatResult struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// ServiceOptions configures a Service. Zero values select defaults.
type ServiceOptions struct {
	RecentProgressLimit int
	Transcript          transcript.Logger
	Recorder            ChatRecorder
	Logger              *slog.Logger
}

// Service runs chat turns against stored state: it resolves the conversation,
// gathers context, drives the Processor and persists the assistant reply.
type Service struct {
	processor     Processor
	store         ChatStore
	progressLimit int
	log           transcript.Logger
	recorder      ChatRecorder
	logger        *slog.Logger
}

// NewService creates a chat service.
func NewService(processor Processor, store ChatStore, opts ServiceOptions) *Service {
	if opts.RecentProgressLimit <= 0 {
		opts.RecentProgressLimit = DefaultRecentProgressLimit
	}
	if opts.Transcript == nil {
		opts.Transcript = transcript.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		processor:     processor,
		store:         store,
		progressLimit: opts.RecentProgressLimit,
		log:           opts.Transcript,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
	}
}

// pendingTurn is a turn whose user message has been stored.
type pendingTurn struct {
	conversation *domain.Conversation
	created      bool
	turn         Turn
}

// Chat runs a turn and yields the loop's events. A conversation event follows
// done when the turn started a new conversation. Failures are yielded once as
// a non-nil error.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		var err error
		defer func() { s.record(req.Channel, time.Since(start), err) }()

		var pending *pendingTurn
		pending, err = s.begin(ctx, req)
		if err != nil {
			yield(Event{}, err)
			return
		}

		var (
			content   strings.Builder
			toolNames []string
			completed bool
			stopped   bool
		)
		for ev, streamErr := range s.processor.Stream(ctx, pending.turn) {
			if streamErr != nil {
				err = streamErr
				s.logFailure(req, pending.conversation.ID, content.String(), err)
				yield(Event{}, err)
				return
			}
			switch ev.Type {
			case EventToolCall:
				if data, ok := ev.Data.(ToolCallData); ok {
					toolNames = append(toolNames, data.Name)
				}
			case EventContent:
				if text, ok := ev.Data.(string); ok {
					content.WriteString(text)
				}
			case EventDone:
				completed = true
			}
			if !yield(ev, nil) {
				stopped = true
				break
			}
		}
		if !completed {
			return
		}

		if err = s.finish(ctx, req, pending.conversation, content.String(), toolNames); err != nil {
			if !stopped {
				yield(Event{}, err)
			}
			return
		}
		if pending.created && !stopped {
			yield(ConversationEvent(pending.conversation.ID), nil)
		}
	}
}

// Reply runs a turn without event telemetry and returns the final text.
func (s *Service) Reply(ctx context.Context, req ChatRequest) (_ *ChatResult, err error) {
	start := time.Now()
	defer func() { s.record(req.Channel, time.Since(start), err) }()

	pending, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	content, err := s.processor.Chat(ctx, pending.turn)
	if err != nil {
		s.logFailure(req, pending.conversation.ID, "", err)
		return nil, err
	}
	if err := s.finish(ctx, req, pending.conversation, content, nil); err != nil {
		return nil, err
	}
	return &ChatResult{ConversationID: pending.conversation.ID, Content: content}, nil
}

func (s *Service) begin(ctx context.Context, req ChatRequest) (*pendingTurn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyInput
	}

	var (
		conv    *domain.Conversation
		created bool
		err     error
	)
	if req.ConversationID != "" {
		conv, err = s.store.GetConversation(ctx, req.ConversationID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("find conversation %s: %w", req.ConversationID, err)
		}
	} else {
		conv, err = s.store.CreateConversation(ctx, req.UserID, domain.TitleFromMessage(req.Message))
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		created = true
	}

	userCtx, history, err := GatherContext(ctx, s.store, req.UserID, conv.ID, s.progressLimit)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        req.Message,
	}); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	s.logger.Info("chat turn started",
		"user_id", req.UserID,
		"conversation_id", conv.ID,
		"channel", req.Channel,
		"goals", len(userCtx.Goals),
		"history", len(history),
	)
	s.log.Log(transcript.Event{
		UserID:         req.UserID,
		ConversationID: conv.ID,
		SessionID:      req.SessionID,
		Channel:        req.Channel,
		Direction:      "inbound",
		EventType:      "chat_user_message",
		ContentRaw:     req.Message,
		Meta:           map[string]any{"request_id": req.RequestID},
	})

	return &pendingTurn{
		conversation: conv,
		created:      created,
		turn: Turn{
			UserID:  req.UserID,
			Input:   req.Message,
			History: history,
			Context: userCtx,
			Tools:   NewRegistry(RepositoryCallbacks(s.store, req.UserID)),
		},
	}, nil
}

// finish stores the assistant reply. It runs detached from ctx so a client
// that disconnects after done does not lose the reply.
func (s *Service) finish(ctx context.Context, req ChatRequest, conv *domain.Conversation, content string, toolNames []string) error {
	ctx = context.WithoutCancel(ctx)

	msg := &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        content,
	}
	if len(toolNames) > 0 {
		meta, err := json.Marshal(map[string][]string{"toolCalls": toolNames})
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		msg.Metadata = meta
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("store assistant message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, conv.ID); err != nil {
		s.logger.Warn("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}

	s.log.Log(transcript.Event{
		UserID:         req.UserID,
		ConversationID: conv.ID,
		SessionID:      req.SessionID,
		Channel:        req.Channel,
		Direction:      "outbound",
		EventType:      "chat_assistant_message",
		ContentRaw:     content,
		Meta: map[string]any{
			"request_id": req.RequestID,
			"tool_calls": toolNames,
		},
	})
	return nil
}

func (s *Service) logFailure(req ChatRequest, conversationID, partial string, err error) {
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "chat turn failed",
		"user_id", req.UserID,
		"conversation_id", conversationID,
		"channel", req.Channel,
		"error", err,
	)
	s.log.Log(transcript.Event{
		UserID:         req.UserID,
		ConversationID: conversationID,
		SessionID:      req.SessionID,
		Channel:        req.Channel,
		Direction:      "outbound",
		EventType:      "chat_error",
		ContentRaw:     partial,
		Meta: map[string]any{
			"request_id": req.RequestID,
			"error":      err.Error(),
		},
	})
}

func (s *Service) record(channel string, elapsed time.Duration, err error) {
	if s.recorder != nil {
		s.recorder.RecordChat(channel, elapsed, err)
	}
}
