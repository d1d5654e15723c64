package kv

import "errors"

var (
	// ErrUnavailable indicates the external store is unreachable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates a store operation exceeded its deadline.
	ErrTimeout = errors.New("store timeout")
)
