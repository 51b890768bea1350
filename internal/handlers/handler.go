// Package handlers implements the pull-transport HTTP API. Pull sessions
// hold a signed token instead of a connection and catch up on missed
// traffic by polling with their last-seen message ID.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/auth"
	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/presence"
	"github.com/flalad/chat-room/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	hub    *hub.Hub
	issuer *auth.TokenIssuer
	store  store.MessageStore
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(h *hub.Hub, issuer *auth.TokenIssuer, st store.MessageStore, logger zerolog.Logger) *Handler {
	return &Handler{hub: h, issuer: issuer, store: st, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// authorize extracts and verifies the bearer token, returning the claims
// that identify the caller's session.
func (h *Handler) authorize(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, auth.ErrInvalidToken
	}
	return h.issuer.Verify(token)
}

// errStatus maps hub validation errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, hub.ErrUnknownSession):
		return http.StatusGone
	case errors.Is(err, hub.ErrInvalidName),
		errors.Is(err, hub.ErrEmptyMessage),
		errors.Is(err, hub.ErrMessageTooLong),
		errors.Is(err, hub.ErrInvalidFile):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, presence.ErrDuplicateSession):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
