package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/embr/internal/api/middleware"
	"github.com/eldtechnologies/embr/internal/metrics"
	"github.com/eldtechnologies/embr/internal/room"
)

// TTLResponse reports a room's remaining lifetime.
type TTLResponse struct {
	TTL int64 `json:"ttl"` // seconds, floored at 0
}

// CreateRoom handles room creation. This is the only unguarded room
// operation; the response is the only place the token is ever returned.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	created, err := h.rooms.Create(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.RoomsCreated.Inc()
	h.JSON(w, http.StatusCreated, created)
}

// GetRoomTTL reports the remaining TTL of a room (guarded).
func (h *Handler) GetRoomTTL(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetRoomAuth(r.Context())
	if auth == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ttl, err := h.rooms.TTL(r.Context(), auth.RoomID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, TTLResponse{TTL: ttl})
}

// JoinRoom mints a participant token for an existing room. Unguarded:
// possession of the room id is the join credential.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(roomID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	token, err := h.rooms.Join(r.Context(), roomID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, JoinRoomResponse{RoomID: roomID, Token: token})
}

// JoinRoomResponse represents the join response.
type JoinRoomResponse struct {
	RoomID string `json:"room_id"`
	Token  string `json:"token"`
}

// DestroyRoom destroys a room early (guarded, creator only). Partial
// key-deletion failures surface as 503 so the caller knows to retry; the
// destroy event has already been published by then.
func (h *Handler) DestroyRoom(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetRoomAuth(r.Context())
	if auth == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if auth.Role != room.RoleCreator {
		h.Error(w, http.StatusForbidden, "only the creator may destroy the room")
		return
	}

	if err := h.rooms.Destroy(r.Context(), auth.RoomID); err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.RoomsDestroyed.Inc()
	w.WriteHeader(http.StatusNoContent)
}
