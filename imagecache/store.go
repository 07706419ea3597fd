package imagecache

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// Store is the persistent key-value store the cache writes through.
//
// Get returns only the keys that exist; an absent key is not an error.
// Any returned error means the store itself failed and must not be read as
// "absent". Writes are last-writer-wins.
//
// RemoveIfUnchanged deletes each key only while its stored value still
// equals the given one, atomically per batch, and returns how many keys it
// deleted. A key rewritten since it was read survives.
//
// db.KVStore is the production implementation.
type Store interface {
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
	RemoveIfUnchanged(ctx context.Context, expected map[string]json.RawMessage) (int, error)
}

// MemoryStore is an in-process Store. Used in tests and when no database
// path is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]json.RawMessage)}
}

// GetAll implements Store.
func (s *MemoryStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.items))
	for k, v := range s.items {
		out[k] = cloneRaw(v)
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := s.items[k]; ok {
			out[k] = cloneRaw(v)
		}
	}
	return out, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range items {
		s.items[k] = cloneRaw(v)
	}
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// RemoveIfUnchanged implements Store.
func (s *MemoryStore) RemoveIfUnchanged(ctx context.Context, expected map[string]json.RawMessage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, want := range expected {
		if v, ok := s.items[k]; ok && bytes.Equal(v, want) {
			delete(s.items, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
