package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/models"
	"github.com/eldtechnologies/embr/internal/room"
)

// validate holds the boundary validation rules; the service layer only ever
// sees already-validated values.
var validate = validator.New()

// EventSource provides live room event streams for the SSE endpoint.
type EventSource interface {
	Subscribe(ctx context.Context, roomID string) (<-chan models.Event, error)
}

// Pinger reports store connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	rooms  *room.Service
	events EventSource
	store  Pinger
}

// NewHandler creates a new Handler.
func NewHandler(rooms *room.Service, events EventSource, store Pinger) *Handler {
	return &Handler{rooms: rooms, events: events, store: store}
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

// DomainError maps service errors onto HTTP responses.
func (h *Handler) DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrUnauthorized):
		h.Error(w, http.StatusUnauthorized, "invalid room token")
	case errors.Is(err, room.ErrValidation):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, kv.ErrTimeout), errors.Is(err, kv.ErrUnavailable):
		h.Error(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
