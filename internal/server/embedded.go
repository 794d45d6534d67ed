package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxRPCBodySize = 1 << 20 // 1MB

// handleEmbeddedRPC accepts one JSON-RPC request from the embedded UI
// and replies with the JSON-RPC response. Transport status is 200 even
// for protocol errors; the error lives in the JSON-RPC envelope.
func (s *Server) handleEmbeddedRPC(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkout_id")
	if checkoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBodySize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
		return
	}

	resp := s.binding.HandleMessage(r.Context(), checkoutID, body)
	respondJSON(w, http.StatusOK, resp)
}

// handleEmbeddedNotifications returns buffered change notifications
// with seq greater than the after parameter, for polling clients.
func (s *Server) handleEmbeddedNotifications(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkout_id")
	if checkoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	if _, err := s.engine.Get(r.Context(), checkoutID); err != nil {
		handleEngineError(w, err)
		return
	}

	notes := s.binding.Missed(checkoutID, after)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"notifications": notes,
	})
}
