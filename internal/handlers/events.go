package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eldtechnologies/embr/internal/api/middleware"
	"github.com/eldtechnologies/embr/internal/models"
)

// StreamEvents delivers a room's live events over Server-Sent Events
// (guarded). Only events published after the subscription are delivered;
// history is available from the messages endpoint. The stream ends when the
// room is destroyed or the client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetRoomAuth(r.Context())
	if auth == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := h.events.Subscribe(r.Context(), auth.RoomID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type == models.EventDestroyed {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev models.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
