package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/room"
)

type contextKey string

const roomAuthContextKey contextKey = "room_auth"

// RoomAuth is the authenticated room/token pair placed into the request
// context by the guard.
type RoomAuth struct {
	RoomID string
	Token  string
	Role   room.Role
}

// tokenShape bounds what the guard accepts before touching the store.
var tokenShape = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// RoomGuard enforces access control on room-scoped endpoints. It validates
// the token/roomId pair before any store mutation and rejects with no side
// effects.
type RoomGuard struct {
	rooms *room.Service
}

// NewRoomGuard creates the guard middleware.
func NewRoomGuard(rooms *room.Service) *RoomGuard {
	return &RoomGuard{rooms: rooms}
}

// Require verifies possession of the room token. It expects a {id} URL
// parameter and reads the token from the X-Room-Token header, falling back
// to the token query parameter (EventSource cannot set headers).
func (g *RoomGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "id")
		if _, err := uuid.Parse(roomID); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid room ID format")
			return
		}

		token := r.Header.Get("X-Room-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !tokenShape.MatchString(token) {
			jsonError(w, http.StatusUnauthorized, "missing or malformed room token")
			return
		}

		role, err := g.rooms.VerifyToken(r.Context(), roomID, token)
		switch {
		case err == nil:
		case errors.Is(err, room.ErrRoomNotFound):
			jsonError(w, http.StatusNotFound, "room not found")
			return
		case errors.Is(err, room.ErrUnauthorized):
			jsonError(w, http.StatusUnauthorized, "invalid room token")
			return
		case errors.Is(err, kv.ErrTimeout), errors.Is(err, kv.ErrUnavailable):
			jsonError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		default:
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), roomAuthContextKey, &RoomAuth{RoomID: roomID, Token: token, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetRoomAuth retrieves the authenticated room/token pair from the request
// context.
func GetRoomAuth(ctx context.Context) *RoomAuth {
	auth, ok := ctx.Value(roomAuthContextKey).(*RoomAuth)
	if !ok {
		return nil
	}
	return auth
}
