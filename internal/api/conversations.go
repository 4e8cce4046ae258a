package api

import (
	"net/http"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ConversationDetail is a conversation with its messages.
type ConversationDetail struct {
	domain.Conversation
	Messages []domain.Message `json:"messages"`
}

// HandleListConversations handles GET /api/conversations.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.repo.ListConversations(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeStoreError(w, "list conversations", err)
		return
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}
	JSON(w, http.StatusOK, conversations)
}

// HandleGetConversation handles GET /api/conversations/{id}.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.repo.GetConversation(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeStoreError(w, "get conversation", err)
		return
	}
	messages, err := h.repo.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.writeStoreError(w, "list messages", err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	JSON(w, http.StatusOK, ConversationDetail{Conversation: *conv, Messages: messages})
}

// HandleDeleteConversation handles DELETE /api/conversations/{id}.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteConversation(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context())); err != nil {
		h.writeStoreError(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
