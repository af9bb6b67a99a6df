package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// Sessions are lost on restart and invisible to other replicas.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	h       Handshake
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, id string, h Handshake, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Expired entries are swept on write so the map stays bounded.
	for k, e := range s.items {
		if now.After(e.expires) {
			delete(s.items, k)
		}
	}
	s.items[id] = memoryEntry{h: h, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, id string) (Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return Handshake{}, ErrNotFound
	}
	delete(s.items, id)
	if s.now().After(e.expires) {
		return Handshake{}, ErrNotFound
	}
	return e.h, nil
}
