package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. This is the default
// backend and matches single-instance deployments; sessions do not
// survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	state := make([]byte, len(entry.state))
	copy(state, entry.state)
	return state, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, sessionID string, state []byte, ttl time.Duration) error {
	entry := memoryEntry{state: make([]byte, len(state))}
	copy(entry.state, state)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[sessionID] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Count implements Store. Expired entries awaiting lazy removal are
// excluded.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, entry := range s.entries {
		if entry.expiresAt.IsZero() || now.Before(entry.expiresAt) {
			n++
		}
	}
	return n, nil
}
