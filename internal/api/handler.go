// Package api provides HTTP handlers for the coach API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/goalcoach/internal/agent"
	"github.com/ashureev/goalcoach/internal/store"
	"github.com/ashureev/goalcoach/internal/validation"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Options tunes request handling.
type Options struct {
	// ChatTimeout bounds one chat turn including both model passes.
	ChatTimeout time.Duration
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// Handler serves the chat, goal and conversation routes.
type Handler struct {
	repo   store.Repository
	chat   *agent.Service
	opts   Options
	ws     ChatSocket
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, chat *agent.Service, opts Options, logger *slog.Logger) *Handler {
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = 2 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxRequestBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:   repo,
		chat:   chat,
		opts:   opts,
		logger: logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a size-limited JSON body into v and validates it. It writes the
// error response itself and reports whether handling should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			Error(w, http.StatusBadRequest, "request body is required")
		default:
			Error(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	if err := validation.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// errorStatus maps service and store errors to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		return http.StatusBadRequest, agent.ErrEmptyInput.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, agent.ErrModel):
		return http.StatusBadGateway, "the coach is unavailable right now, please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the coach took too long to answer"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
