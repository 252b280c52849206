// ABOUTME: Write-through credential store backed by a durable Backend
// ABOUTME: Serves reads from an in-memory snapshot so readers never wait on backend I/O

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Backend persists a session across process restarts.
type Backend interface {
	// Load returns the stored session, or the zero Session if nothing is stored.
	Load(ctx context.Context) (Session, error)

	// Save stores token and role as one unit.
	Save(ctx context.Context, s Session) error

	// Delete removes the stored session. Deleting nothing is not an error.
	Delete(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// PersistentStore is a Store whose writes go through to a Backend.
type PersistentStore struct {
	backend Backend
	logger  *slog.Logger

	// writeMu serializes writers; mu only guards the snapshot swap.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Session
	closed  bool
}

// Open creates a PersistentStore and loads the stored session from backend.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) (*PersistentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PersistentStore{
		backend: backend,
		logger:  logger.With("component", "session"),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value stored under key.
func (s *PersistentStore) Get(key string) (string, bool) {
	return lookup(s.Session(), key)
}

// Session returns the current snapshot.
func (s *PersistentStore) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set writes the pair to the backend, then publishes it to readers.
func (s *PersistentStore) Set(ctx context.Context, sess Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if err := s.backend.Save(ctx, sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	s.publish(sess)
	s.logger.Debug("session stored", "role", sess.Role, "has_token", sess.HasToken())
	return nil
}

// Clear deletes the pair from the backend, then publishes the anonymous session.
func (s *PersistentStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.publish(Session{})
	s.logger.Debug("session cleared")
	return nil
}

// Reload replaces the snapshot with what the backend currently holds.
// Use it to observe a login or logout performed by another process.
func (s *PersistentStore) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	sess, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	s.publish(sess)
	return nil
}

// Close closes the backend. The last snapshot stays readable.
func (s *PersistentStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.backend.Close()
}

func (s *PersistentStore) publish(sess Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *PersistentStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
