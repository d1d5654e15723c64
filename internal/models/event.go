package models

import "encoding/json"

// Event types published on a room's broadcast channel.
const (
	EventMessage   = "chat.message"
	EventDestroyed = "destroy.isDestroyed"
)

// Event is the envelope published on a room's channel.
//
// Payload is the declared schema for the event type: a token-less Message
// for chat.message, literal true for destroy.isDestroyed.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessageEvent builds a chat.message event. The token is stripped before
// marshalling so it can never leak through the live channel.
func NewMessageEvent(m Message) Event {
	m.Token = ""
	payload, _ := json.Marshal(m)
	return Event{Type: EventMessage, Payload: payload}
}

// NewDestroyedEvent builds a destroy.isDestroyed event.
func NewDestroyedEvent() Event {
	return Event{Type: EventDestroyed, Payload: json.RawMessage("true")}
}
