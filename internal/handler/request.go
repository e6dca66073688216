package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"helparo/internal/httputil"
	"helparo/internal/model"
	"helparo/internal/transport/http/middleware"
)

// StatusReader is the poll side of the request service.
type StatusReader interface {
	GetStatus(ctx context.Context, id string) (*model.StatusSnapshot, error)
}

// RequestActions are the lifecycle transitions a customer or helper app drives.
type RequestActions interface {
	AssignHelper(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error)
	CompleteRequest(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error)
	CancelRequest(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error)
}

type RequestHandler struct {
	status  StatusReader
	actions RequestActions
	log     *zap.SugaredLogger
}

func NewRequestHandler(status StatusReader, actions RequestActions, log *zap.SugaredLogger) *RequestHandler {
	return &RequestHandler{
		status:  status,
		actions: actions,
		log:     log.Named("requests"),
	}
}

// GetStatus handles GET /requests/{id}/status
// Returns the three polled fields and nothing else.
func (h *RequestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := h.status.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrRequestNotFound) {
			httputil.WriteNotFound(w, "Not found")
			return
		}
		h.log.Errorw("Get status FAILED", "request", id, "err", err)
		httputil.WriteInternalError(w, "Failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snap)
}

// Assign handles POST /requests/{id}/assign
func (h *RequestHandler) Assign(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.actions.AssignHelper(r.Context(), caller, id, req.HelperID)
	writeTransition(w, h.log, "assign", id, result, err)
}

// Complete handles POST /requests/{id}/complete
// The body is optional once a helper is assigned.
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req model.CompleteRequestBody
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	result, err := h.actions.CompleteRequest(r.Context(), caller, id, req.HelperID)
	writeTransition(w, h.log, "complete", id, result, err)
}

// Cancel handles POST /requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	result, err := h.actions.CancelRequest(r.Context(), caller, id)
	writeTransition(w, h.log, "cancel", id, result, err)
}

// writeTransition renders {"success":true,"version":n} or the classified error.
func writeTransition(w http.ResponseWriter, log *zap.SugaredLogger, op, id string, result *model.TransitionResult, err error) {
	if err != nil {
		status, message := httputil.Classify(err, "Failed to "+op+" request")
		if status >= http.StatusInternalServerError {
			log.Errorw("Transition FAILED", "op", op, "request", id, "err", err)
		}
		httputil.WriteError(w, status, message)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// decodeOptional decodes a JSON body into dst, treating an empty body as {}.
func decodeOptional(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
