// Package ident generates collision-resistant opaque identifiers.
package ident

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewRoomID returns a time-ordered UUID v7 string for a new room.
func NewRoomID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMessageID returns a ULID string for a new message.
func NewMessageID() string {
	return ulid.Make().String()
}
