package room

import "errors"

var (
	// ErrUnauthorized is returned when the presented token is missing,
	// malformed, or not signed for the room. It is always raised before any
	// store mutation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRoomNotFound is returned when the room's metadata key is absent.
	// The meta key is the sole authority for room existence.
	ErrRoomNotFound = errors.New("room not found")

	// ErrValidation is returned for malformed identifiers or field length
	// violations at the boundary.
	ErrValidation = errors.New("validation failed")

	// ErrBroadcast indicates a publish failed. Non-fatal for posting: the
	// message is already stored when the broadcast runs.
	ErrBroadcast = errors.New("broadcast failed")
)
