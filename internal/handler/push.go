package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"helparo/internal/httputil"
	"helparo/internal/model"
)

// PushRegistrar stores a device token without a session.
type PushRegistrar interface {
	RegisterPushToken(ctx context.Context, req model.PushRegisterRequest) error
}

type PushHandler struct {
	registrar PushRegistrar
	log       *zap.SugaredLogger
}

func NewPushHandler(registrar PushRegistrar, log *zap.SugaredLogger) *PushHandler {
	return &PushHandler{registrar: registrar, log: log.Named("push")}
}

// Register handles POST /push/register
// Called by the native shell with {userId, token, platform?}.
func (h *PushHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.PushRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.registrar.RegisterPushToken(r.Context(), req); err != nil {
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			httputil.WriteBadRequest(w, validationErr.Message)
			return
		}
		h.log.Errorw("Push register FAILED", "user", req.UserID, "err", err)
		httputil.WriteInternalError(w, "Failed to save token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
