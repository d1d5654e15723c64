package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
// Expiry is enforced lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*memEntry
}

type memEntry struct {
	hash     map[string]string
	list     [][]byte
	deadline time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*memEntry)}
}

// get returns the live entry for key, reaping it first if expired.
// Callers must hold mu.
func (s *MemoryStore) get(key string) *memEntry {
	e, ok := s.keys[key]
	if !ok {
		return nil
	}
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		delete(s.keys, key)
		return nil
	}
	return e
}

func (s *MemoryStore) SetHash(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		e = &memEntry{hash: make(map[string]string)}
		s.keys[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *MemoryStore) GetHashField(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return "", false, nil
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (s *MemoryStore) GetTTL(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.deadline.IsZero() {
		return NoTTL, nil
	}
	secs := int64(time.Until(e.deadline).Seconds())
	if secs < 0 {
		secs = 0
	}
	return secs, nil
}

func (s *MemoryStore) SetTTL(ctx context.Context, key string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return nil
	}
	e.deadline = time.Now().Add(time.Duration(seconds) * time.Second)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key) != nil, nil
}

func (s *MemoryStore) AppendToList(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		e = &memEntry{}
		s.keys[key] = e
	}
	v := make([]byte, len(value))
	copy(v, value)
	e.list = append(e.list, v)
	return nil
}

func (s *MemoryStore) ReadListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range e.list[start : stop+1] {
		c := make([]byte, len(v))
		copy(c, v)
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
