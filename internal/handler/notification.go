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

// NotificationGateway forwards device and preference actions to the
// database procedures.
type NotificationGateway interface {
	RegisterDevice(ctx context.Context, caller model.Caller, token, platform string) (json.RawMessage, error)
	SetNotificationPref(ctx context.Context, caller model.Caller, channel string, enabled bool) (json.RawMessage, error)
	MarkNotificationRead(ctx context.Context, caller model.Caller, id string) (json.RawMessage, error)
}

type NotificationHandler struct {
	gateway NotificationGateway
	log     *zap.SugaredLogger
}

func NewNotificationHandler(gateway NotificationGateway, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{
		gateway: gateway,
		log:     log.Named("notifications"),
	}
}

// dataResponse relays a procedure result unchanged.
type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

// RegisterDevice handles POST /devices/token
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())

	var req model.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	data, err := h.gateway.RegisterDevice(r.Context(), caller, req.Token, req.Platform)
	h.writeResult(w, data, err, "Failed to register device")
}

// SetPreference handles PUT /notifications/preferences
func (h *NotificationHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())

	var req model.NotificationPrefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Enabled == nil {
		httputil.WriteBadRequest(w, "Missing enabled")
		return
	}

	data, err := h.gateway.SetNotificationPref(r.Context(), caller, req.Channel, *req.Enabled)
	h.writeResult(w, data, err, "Failed to update preference")
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCallerFromContext(r.Context())

	data, err := h.gateway.MarkNotificationRead(r.Context(), caller, chi.URLParam(r, "id"))
	h.writeResult(w, data, err, "Failed to mark notification read")
}

func (h *NotificationHandler) writeResult(w http.ResponseWriter, data json.RawMessage, err error, fallback string) {
	if err != nil {
		httputil.WriteServiceError(w, err, fallback)
		return
	}
	if data == nil {
		data = json.RawMessage("null")
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse{Data: data})
}
