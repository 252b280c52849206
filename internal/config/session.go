// ABOUTME: Builds the configured session store, honoring GATEKEEPER_TOKEN overrides
// ABOUTME: File and sqlite paths default to the XDG config directory

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/2389/gatekeeper/internal/session"
)

// OpenStore opens the session store described by s. When GATEKEEPER_TOKEN is
// set the environment session is served from memory and nothing is persisted.
// The returned close function releases the backend.
func (s SessionConfig) OpenStore(ctx context.Context, logger *slog.Logger) (session.Store, func() error, error) {
	noop := func() error { return nil }

	if sess, ok := session.FromEnv(); ok {
		logger.Debug("using session from environment", "role", sess.Role)
		return session.NewMemoryStore(sess), noop, nil
	}

	var backend session.Backend
	switch s.Backend {
	case BackendMemory:
		return session.NewMemoryStore(session.Session{}), noop, nil
	case BackendFile:
		backend = session.NewFileBackend(s.filePath())
	case BackendSQLite:
		b, err := session.NewSQLiteBackend(s.sqlitePath())
		if err != nil {
			return nil, nil, err
		}
		backend = b
	case BackendRedis:
		b, err := session.DialRedis(s.RedisURL, s.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		backend = b
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", s.Backend)
	}

	store, err := session.Open(ctx, backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	logger.Debug("session store opened", "backend", s.Backend)
	return store, store.Close, nil
}

func (s SessionConfig) filePath() string {
	if s.Path != "" {
		return s.Path
	}
	return session.DefaultFilePath()
}

func (s SessionConfig) sqlitePath() string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(filepath.Dir(session.DefaultFilePath()), "session.db")
}
