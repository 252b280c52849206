// ABOUTME: In-memory credential store used for tests and anonymous runs
// ABOUTME: Guards the token/role pair with a RWMutex so readers never see a half-written pair

package session

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store with no persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	current Session
}

// NewMemoryStore creates a store seeded with the given session.
func NewMemoryStore(initial Session) *MemoryStore {
	return &MemoryStore{current: initial}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(key string) (string, bool) {
	return lookup(m.Session(), key)
}

// Session returns the current snapshot.
func (m *MemoryStore) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Set replaces the token/role pair.
func (m *MemoryStore) Set(_ context.Context, s Session) error {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// Clear resets the store to the anonymous session.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()
	return nil
}
