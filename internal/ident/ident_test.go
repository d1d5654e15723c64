package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID(t *testing.T) {
	req := require.New(t)

	id := NewRoomID()
	parsed, err := uuid.Parse(id)
	req.NoError(err)
	req.Equal(uuid.Version(7), parsed.Version())
	req.NotEqual(id, NewRoomID())
}

func TestNewMessageIDIsSortable(t *testing.T) {
	req := require.New(t)

	a := NewMessageID()
	b := NewMessageID()

	_, err := ulid.Parse(a)
	req.NoError(err)
	req.NotEqual(a, b)
	req.LessOrEqual(a, b) // lexicographic order follows creation order
}
