package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/identity"
	"github.com/go-chi/chi/v5"
)

// CreateGoalRequest is the body of POST /api/goals.
type CreateGoalRequest struct {
	Title       string  `json:"title" validate:"required,notblank,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active completed paused abandoned"`
	TargetDate  *string `json:"targetDate,omitempty" validate:"omitempty,isodate"`
}

// UpdateGoalRequest is the body of PATCH /api/goals/{id}.
type UpdateGoalRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitnil,notblank,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active completed paused abandoned"`
	TargetDate  *string `json:"targetDate,omitempty" validate:"omitempty,isodate"`
}

// AddProgressRequest is the body of POST /api/goals/{id}/progress.
type AddProgressRequest struct {
	Notes     string          `json:"notes" validate:"required,max=4000"`
	Sentiment *string         `json:"sentiment,omitempty" validate:"omitempty,oneof=positive neutral challenging"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// HandleListGoals handles GET /api/goals. An optional ?status= filters the result.
func (h *Handler) HandleListGoals(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	status := domain.GoalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		Error(w, http.StatusBadRequest, "unknown status")
		return
	}

	goals, err := h.repo.ListGoals(r.Context(), userID, status)
	if err != nil {
		h.logger.Error("failed to list goals", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list goals")
		return
	}
	if goals == nil {
		goals = []domain.Goal{}
	}
	JSON(w, http.StatusOK, goals)
}

// HandleCreateGoal handles POST /api/goals.
func (h *Handler) HandleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req CreateGoalRequest
	if !h.decode(w, r, &req) {
		return
	}
	goal := &domain.Goal{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.GoalStatusActive,
		TargetDate:  normalizeDate(req.TargetDate),
	}
	if req.Status != nil {
		goal.Status = domain.GoalStatus(*req.Status)
	}
	if err := h.repo.CreateGoal(r.Context(), goal); err != nil {
		h.logger.Error("failed to create goal", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create goal")
		return
	}
	JSON(w, http.StatusCreated, goal)
}

// HandleGetGoal handles GET /api/goals/{id}.
func (h *Handler) HandleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := h.repo.GetGoal(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeStoreError(w, "get goal", err)
		return
	}
	JSON(w, http.StatusOK, goal)
}

// HandleUpdateGoal handles PATCH /api/goals/{id}.
func (h *Handler) HandleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req UpdateGoalRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := domain.GoalPatch{
		Description: req.Description,
		TargetDate:  normalizeDate(req.TargetDate),
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if req.Status != nil {
		status := domain.GoalStatus(*req.Status)
		patch.Status = &status
	}
	if patch.Empty() {
		Error(w, http.StatusBadRequest, "no fields to update")
		return
	}

	goal, err := h.repo.UpdateGoal(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context()), patch)
	if err != nil {
		h.writeStoreError(w, "update goal", err)
		return
	}
	JSON(w, http.StatusOK, goal)
}

// HandleDeleteGoal handles DELETE /api/goals/{id}.
func (h *Handler) HandleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteGoal(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context())); err != nil {
		h.writeStoreError(w, "delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListProgress handles GET /api/goals/{id}/progress.
func (h *Handler) HandleListProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListProgress(r.Context(), chi.URLParam(r, "id"), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeStoreError(w, "list progress", err)
		return
	}
	if entries == nil {
		entries = []domain.ProgressEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

// HandleAddProgress handles POST /api/goals/{id}/progress.
func (h *Handler) HandleAddProgress(w http.ResponseWriter, r *http.Request) {
	var req AddProgressRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry := &domain.ProgressEntry{
		GoalID:   chi.URLParam(r, "id"),
		Notes:    req.Notes,
		Metadata: req.Metadata,
	}
	if req.Sentiment != nil {
		s := domain.Sentiment(*req.Sentiment)
		entry.Sentiment = &s
	}
	if err := h.repo.AddProgress(r.Context(), identity.UserIDFromContext(r.Context()), entry); err != nil {
		h.writeStoreError(w, "add progress", err)
		return
	}
	JSON(w, http.StatusCreated, entry)
}

// writeStoreError maps repository failures to a response and logs unexpected ones.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("repository call failed", "op", op, "error", err)
		msg = "failed to " + op
	}
	Error(w, status, msg)
}

// normalizeDate rewrites an already validated date to YYYY-MM-DD.
func normalizeDate(value *string) *string {
	if value == nil {
		return nil
	}
	normalized, err := domain.NormalizeDate(*value)
	if err != nil {
		return value
	}
	return &normalized
}
