// Package kv provides typed operations over an external ephemeral key-value
// store. Callers own retry policy; this layer performs none.
package kv

import "context"

// NoTTL is the sentinel returned by GetTTL when the key is absent or carries
// no expiry.
const NoTTL int64 = -1

// Store is the contract the rest of the service depends on. The production
// implementation is Redis; tests substitute the in-memory implementation.
type Store interface {
	// SetHash sets fields on a hash, creating the key if needed.
	SetHash(ctx context.Context, key string, fields map[string]string) error

	// GetHashField reads one hash field. found is false when either the key
	// or the field is absent.
	GetHashField(ctx context.Context, key, field string) (value string, found bool, err error)

	// GetTTL returns the remaining TTL in whole seconds, or NoTTL.
	GetTTL(ctx context.Context, key string) (int64, error)

	// SetTTL sets the key's TTL in seconds. Setting a TTL on a missing key
	// is a no-op.
	SetTTL(ctx context.Context, key string, seconds int64) error

	// Exists reports whether the key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// AppendToList appends a value to the tail of the list at key.
	AppendToList(ctx context.Context, key string, value []byte) error

	// ReadListRange returns list elements from start to stop inclusive,
	// in insertion order. Negative indices count from the tail.
	ReadListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// DeleteKey removes the key. Deleting a missing key is not an error.
	DeleteKey(ctx context.Context, key string) error
}
