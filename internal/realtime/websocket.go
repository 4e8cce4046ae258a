package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/ashureev/goalcoach/internal/middleware"
	"github.com/ashureev/goalcoach/internal/store"
	"github.com/ashureev/goalcoach/internal/transcript"
	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// ConnectionGauge tracks open connections. prometheus.Gauge satisfies it.
type ConnectionGauge interface {
	Inc()
	Dec()
}

// Options configures a ChatHandler.
type Options struct {
	AllowedOrigins []string
	IsDev          bool
	ChatTimeout    time.Duration
	// Limiter, when set, is charged once per chat message.
	Limiter   *middleware.RateLimiter
	OnLimited func()
	Gauge     ConnectionGauge
}

// ChatHandler serves chat turns over a WebSocket. Clients send
// {"message","conversationId"} frames and receive the turn's events as JSON
// text frames, one event per frame.
type ChatHandler struct {
	chat *agent.Service
	sm   *SessionManager
	opts Options
}

// NewChatHandler creates a WebSocket chat handler.
func NewChatHandler(chat *agent.Service, sm *SessionManager, opts Options) *ChatHandler {
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = 2 * time.Minute
	}
	return &ChatHandler{chat: chat, sm: sm, opts: opts}
}

// clientMessage is one frame sent by the client.
type clientMessage struct {
	Type           string `json:"type,omitempty"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns(),
		InsecureSkipVerify: h.opts.IsDev,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)
	if h.opts.Gauge != nil {
		h.opts.Gauge.Inc()
		defer h.opts.Gauge.Dec()
	}

	h.readLoop(r.Context(), ws, userID, sessionID)
	slog.Info("Chat connection ended", "user_id", userID, "session_id", sessionID)
}

// Disconnect handles DELETE /api/chat/ws by closing every chat connection of
// the caller, across tabs and devices.
func (h *ChatHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	closed := h.sm.CloseUser(userID)
	slog.Info("Chat connections disconnected", "user_id", userID, "closed", closed)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) originPatterns() []string {
	var patterns []string
	for _, origin := range h.opts.AllowedOrigins {
		if origin == "*" {
			return []string{"*"}
		}
		// OriginPatterns match the host only.
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		patterns = append(patterns, host)
	}
	return patterns
}

// readLoop handles one message at a time; a turn finishes before the next frame is read.
func (h *ChatHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	var conversationID string
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if !h.writeEvent(ctx, ws, agent.ErrorEvent("invalid message")) {
				return
			}
			continue
		}

		switch msg.Type {
		case "ping":
			if !h.writeJSON(ctx, ws, map[string]string{"type": "pong"}) {
				return
			}
			continue
		case "", "chat":
		default:
			if !h.writeEvent(ctx, ws, agent.ErrorEvent("unknown message type")) {
				return
			}
			continue
		}

		if strings.TrimSpace(msg.Message) == "" {
			if !h.writeEvent(ctx, ws, agent.ErrorEvent(agent.ErrEmptyInput.Error())) {
				return
			}
			continue
		}
		if h.opts.Limiter != nil && !h.opts.Limiter.Allow(userID) {
			if h.opts.OnLimited != nil {
				h.opts.OnLimited()
			}
			if !h.writeEvent(ctx, ws, agent.ErrorEvent("rate limit exceeded")) {
				return
			}
			continue
		}
		if msg.ConversationID != "" {
			conversationID = msg.ConversationID
		}

		next, ok := h.runTurn(ctx, ws, agent.ChatRequest{
			UserID:         userID,
			SessionID:      sessionID,
			ConversationID: conversationID,
			Message:        msg.Message,
			Channel:        transcript.ChannelWebSocket,
		})
		if !ok {
			return
		}
		conversationID = next
	}
}

// runTurn streams one turn to the client and returns the conversation the
// connection should continue in. ok is false when the connection is gone.
func (h *ChatHandler) runTurn(ctx context.Context, ws *websocket.Conn, req agent.ChatRequest) (conversationID string, ok bool) {
	turnCtx, cancel := context.WithTimeout(ctx, h.opts.ChatTimeout)
	defer cancel()

	conversationID = req.ConversationID
	for ev, err := range h.chat.Chat(turnCtx, req) {
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				conversationID = ""
			}
			return conversationID, h.writeEvent(ctx, ws, agent.ErrorEvent(publicMessage(err)))
		}
		if ev.Type == agent.EventConversation {
			if data, isConv := ev.Data.(agent.ConversationData); isConv {
				conversationID = data.ConversationID
			}
		}
		if !h.writeEvent(ctx, ws, ev) {
			return conversationID, false
		}
	}
	return conversationID, true
}

func (h *ChatHandler) writeEvent(ctx context.Context, ws *websocket.Conn, ev agent.Event) bool {
	return h.writeJSON(ctx, ws, ev)
}

func (h *ChatHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket frame", "error", err)
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return false
	}
	return true
}

// publicMessage hides provider and storage detail from clients.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		return agent.ErrEmptyInput.Error()
	case errors.Is(err, store.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, agent.ErrModel):
		return "the coach is unavailable right now, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "the coach took too long to answer"
	default:
		return "internal error"
	}
}
