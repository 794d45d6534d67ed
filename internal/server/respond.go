package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/AltanReisoglu/UCP-AGENT/internal/engine"
)

// APIMessage is one entry in an error envelope.
type APIMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// ErrorResponse is the structured failure envelope returned by every
// endpoint.
type ErrorResponse struct {
	Status string       `json:"status"`
	Errors []APIMessage `json:"errors"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Status: "error",
		Errors: []APIMessage{{Code: code, Message: message, Severity: "error"}},
	})
}

// handleEngineError converts the engine taxonomy into HTTP statuses.
func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "checkout_not_found", err.Error())
	case errors.Is(err, engine.ErrConflict):
		respondError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, engine.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, engine.ErrIncompleteRequirements):
		respondError(w, http.StatusUnprocessableEntity, "incomplete_requirements", err.Error())
	case errors.Is(err, engine.ErrSigning):
		respondError(w, http.StatusInternalServerError, "signing_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
