package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/go-chi/chi/v5"
)

// HandleReady handles GET /ready by pinging the store.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ChatSocket is the WebSocket chat endpoint. Disconnect closes every socket of
// the authenticated caller.
type ChatSocket interface {
	http.Handler
	Disconnect(w http.ResponseWriter, r *http.Request)
}

// SetWebSocket mounts ws at GET /api/chat/ws and its Disconnect at
// DELETE /api/chat/ws. The chat capability is required to connect but
// chatGuard is not applied; the socket limits per message instead.
func (h *Handler) SetWebSocket(ws ChatSocket) {
	h.ws = ws
}

// RegisterRoutes mounts the authenticated API. chatGuard wraps the chat
// endpoints only, typically with the chat capability check and rate limiting.
func (h *Handler) RegisterRoutes(r chi.Router, chatGuard ...func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chatGuard...)
			r.Post("/chat", h.HandleChat)
			r.Post("/chat/stream", h.HandleChatStream)
		})
		if h.ws != nil {
			r.With(identity.RequireChat).Get("/chat/ws", h.ws.ServeHTTP)
			r.Delete("/chat/ws", h.ws.Disconnect)
		}

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.HandleListGoals)
			r.Post("/", h.HandleCreateGoal)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetGoal)
				r.Patch("/", h.HandleUpdateGoal)
				r.Delete("/", h.HandleDeleteGoal)
				r.Get("/progress", h.HandleListProgress)
				r.Post("/progress", h.HandleAddProgress)
			})
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.HandleListConversations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetConversation)
				r.Delete("/", h.HandleDeleteConversation)
			})
		})
	})
}
