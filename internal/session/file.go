// ABOUTME: File backend storing the session as a small YAML document under the XDG config dir
// ABOUTME: Writes are atomic (temp file + rename) and the file is readable only by its owner

package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFilePath returns the default session file location.
// Priority: XDG_CONFIG_HOME/gatekeeper/session.yaml > ~/.config/gatekeeper/session.yaml
func DefaultFilePath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "session.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "gatekeeper", "session.yaml")
}

// FileBackend persists the session to a YAML file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend at path. Parent directories are
// created on first save.
func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = DefaultFilePath()
	}
	return &FileBackend{path: path}
}

// Path returns the session file location.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the session file. A missing file is the anonymous session.
func (b *FileBackend) Load(_ context.Context) (Session, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session file: %w", err)
	}

	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("parsing session file: %w", err)
	}
	return sess, nil
}

// Save writes the session file atomically.
func (b *FileBackend) Save(_ context.Context, s Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Delete removes the session file.
func (b *FileBackend) Delete(_ context.Context) error {
	err := os.Remove(b.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Close is a no-op for files.
func (b *FileBackend) Close() error {
	return nil
}
