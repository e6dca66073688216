package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"helparo/internal/httputil"
	"helparo/internal/model"
	"helparo/internal/transport/http/middleware"
)

// BroadcastActions are the callbacks the external matcher uses to report on
// its broadcast to nearby helpers.
type BroadcastActions interface {
	StartBroadcast(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error)
	AcceptBroadcast(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error)
	ExpireBroadcast(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error)
}

type MatcherHandler struct {
	actions BroadcastActions
	log     *zap.SugaredLogger
}

func NewMatcherHandler(actions BroadcastActions, log *zap.SugaredLogger) *MatcherHandler {
	return &MatcherHandler{actions: actions, log: log.Named("matcher")}
}

// Broadcast handles POST /internal/requests/{id}/broadcast
func (h *MatcherHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	result, err := h.actions.StartBroadcast(r.Context(), caller, id)
	writeTransition(w, h.log, "broadcast", id, result, err)
}

// Accept handles POST /internal/requests/{id}/accept
func (h *MatcherHandler) Accept(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.actions.AcceptBroadcast(r.Context(), caller, id, req.HelperID)
	writeTransition(w, h.log, "accept", id, result, err)
}

// Expire handles POST /internal/requests/{id}/expire
func (h *MatcherHandler) Expire(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	result, err := h.actions.ExpireBroadcast(r.Context(), caller, id)
	writeTransition(w, h.log, "expire", id, result, err)
}
