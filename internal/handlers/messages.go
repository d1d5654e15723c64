package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/embr/internal/api/middleware"
	"github.com/eldtechnologies/embr/internal/metrics"
	"github.com/eldtechnologies/embr/internal/models"
)

// PostMessageRequest represents the post message request. Lengths count
// characters, not bytes; the 100/1000 bounds are part of the public
// contract.
type PostMessageRequest struct {
	Sender string `json:"sender" validate:"required,max=100"`
	Text   string `json:"text" validate:"required,max=1000"`
}

// PostMessageResponse represents the post message response.
type PostMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// ListMessagesResponse represents the message history response.
type ListMessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// PostMessage appends a message to a room (guarded).
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetRoomAuth(r.Context())
	if auth == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.Error(w, http.StatusUnprocessableEntity, "sender must be 1-100 characters and text 1-1000 characters")
		return
	}

	msg, err := h.rooms.Post(r.Context(), auth.RoomID, auth.Token, req.Sender, req.Text)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	metrics.MessagesPosted.Inc()
	h.JSON(w, http.StatusCreated, PostMessageResponse{ID: msg.ID, Timestamp: msg.Timestamp})
}

// ListMessages returns the full history in insertion order (guarded). Tokens
// are redacted per-message unless they match the caller's.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetRoomAuth(r.Context())
	if auth == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	messages, err := h.rooms.List(r.Context(), auth.RoomID, auth.Token)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, ListMessagesResponse{Messages: messages})
}
