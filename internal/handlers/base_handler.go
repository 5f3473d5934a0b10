package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orenmazor/jobservitor/internal/store"
)

// ErrorResponse is the standard error body, matching §7's taxonomy.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BaseHandler holds the response helpers shared by every handler.
type BaseHandler struct{}

func (h *BaseHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error","message":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError maps a store.Err* sentinel to its HTTP status and a
// response body, per §7's taxonomy. message overrides the generic text
// when the caller needs an exact string (e.g. the abort-conflict message).
func (h *BaseHandler) respondWithError(w http.ResponseWriter, err error, message string) {
	var errType string
	var code int

	switch {
	case errors.Is(err, store.ErrNotFound):
		errType, code = "not_found", http.StatusNotFound
		if message == "" {
			message = "job not found"
		}
	case errors.Is(err, store.ErrInvalidInput):
		errType, code = "invalid_input", http.StatusUnprocessableEntity
		if message == "" {
			message = "invalid input"
		}
	case errors.Is(err, store.ErrConflict):
		errType, code = "conflict", http.StatusBadRequest
		if message == "" {
			message = "conflict"
		}
	case errors.Is(err, store.ErrServiceUnavailable):
		errType, code = "service_unavailable", http.StatusInternalServerError
		if message == "" {
			message = "store unavailable"
		}
	default:
		errType, code = "internal_error", http.StatusInternalServerError
		if message == "" {
			message = "internal server error"
		}
	}

	h.respondWithJSON(w, code, ErrorResponse{Error: errType, Message: message})
}

func (h *BaseHandler) getID(r *http.Request, key string) string {
	return GetIDFromContext(r, key)
}
