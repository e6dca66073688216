package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"helparo/internal/model"
)

// ErrorResponse is the body of every failed response: {"error": "message"}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		// Headers are already sent; an encode failure can only be dropped.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes {"error": message} with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteServiceError maps a service error to its status and message. Store
// errors carry the driver's message verbatim; anything unrecognised becomes
// a 500 with fallback.
func WriteServiceError(w http.ResponseWriter, err error, fallback string) {
	status, message := Classify(err, fallback)
	WriteError(w, status, message)
}

// Classify returns the HTTP status and client-facing message for err.
func Classify(err error, fallback string) (int, string) {
	var (
		validationErr *model.ValidationError
		illegalErr    *model.IllegalTransitionError
		storeErr      *model.StoreError
	)

	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, model.ErrRequestNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.As(err, &illegalErr):
		return http.StatusConflict, illegalErr.Error()
	case errors.Is(err, model.ErrConcurrentUpdate):
		return http.StatusConflict, model.ErrConcurrentUpdate.Error()
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError, storeErr.Message()
	}
	return http.StatusInternalServerError, fallback
}
