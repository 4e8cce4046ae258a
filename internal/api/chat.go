package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/ashureev/goalcoach/internal/transcript"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Message        string `json:"message" validate:"max=8000"`
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,max=64"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	ConversationID string        `json:"conversationId"`
	Content        string        `json:"content"`
	Events         []agent.Event `json:"events"`
}

// HandleChatStream handles POST /api/chat/stream, answering with SSE frames.
func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.chatRequest(w, r, transcript.ChannelStream)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ChatTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev, err := range h.chat.Chat(ctx, req) {
		if err != nil {
			_, msg := errorStatus(err)
			ev = agent.ErrorEvent(msg)
		}
		if writeErr := writeSSE(w, ev); writeErr != nil {
			h.logger.Warn("failed to write SSE event", "error", writeErr, "user_id", req.UserID, "type", ev.Type)
			return
		}
		flusher.Flush()
		if err != nil {
			return
		}
	}
}

// HandleChat handles POST /api/chat and returns the whole turn as one JSON body.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.chatRequest(w, r, transcript.ChannelHTTP)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ChatTimeout)
	defer cancel()

	resp := ChatResponse{ConversationID: req.ConversationID, Events: []agent.Event{}}
	var content strings.Builder
	for ev, err := range h.chat.Chat(ctx, req) {
		if err != nil {
			status, msg := errorStatus(err)
			Error(w, status, msg)
			return
		}
		switch ev.Type {
		case agent.EventContent:
			if text, ok := ev.Data.(string); ok {
				content.WriteString(text)
			}
		case agent.EventConversation:
			if data, ok := ev.Data.(agent.ConversationData); ok {
				resp.ConversationID = data.ConversationID
			}
		}
		resp.Events = append(resp.Events, ev)
	}
	resp.Content = content.String()
	JSON(w, http.StatusOK, resp)
}

// chatRequest decodes and checks a chat body. A supplied conversation must be
// owned by the caller; that is checked here so SSE clients get a real 404.
func (h *Handler) chatRequest(w http.ResponseWriter, r *http.Request, channel string) (agent.ChatRequest, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return agent.ChatRequest{}, false
	}

	var body ChatRequest
	if !h.decode(w, r, &body) {
		return agent.ChatRequest{}, false
	}
	if strings.TrimSpace(body.Message) == "" {
		Error(w, http.StatusBadRequest, agent.ErrEmptyInput.Error())
		return agent.ChatRequest{}, false
	}
	if body.ConversationID != "" {
		if _, err := h.repo.GetConversation(r.Context(), body.ConversationID, userID); err != nil {
			status, msg := errorStatus(err)
			Error(w, status, msg)
			return agent.ChatRequest{}, false
		}
	}

	h.logger.Info("chat request",
		"user_id", userID,
		"conversation_id", body.ConversationID,
		"channel", channel,
		"message_length", len(body.Message),
	)
	return agent.ChatRequest{
		UserID:         userID,
		SessionID:      identity.SessionIDFromContext(r.Context()),
		ConversationID: body.ConversationID,
		Message:        body.Message,
		Channel:        channel,
		RequestID:      chiMiddleware.GetReqID(r.Context()),
	}, true
}

// writeSSE writes one data-only SSE frame.
func writeSSE(w io.Writer, ev agent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	return nil
}
