// ABOUTME: SQLite backend for the credential store using modernc.org/sqlite
// ABOUTME: Stores token and role as rows of a key/value table, written in one transaction

package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists the session in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets another process read while we write
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (key IN ('token', 'role'))
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Load reads the stored pair. Missing rows read as absent.
func (b *SQLiteBackend) Load(ctx context.Context) (Session, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return Session{}, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var sess Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Session{}, fmt.Errorf("scanning credential: %w", err)
		}
		switch key {
		case KeyToken:
			sess.Token = value
		case KeyRole:
			sess.Role = Role(value)
		}
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("iterating credentials: %w", err)
	}
	return sess, nil
}

// Save replaces both rows inside one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, s Session) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	insert := `INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)`
	if s.Token != "" {
		if _, err := tx.ExecContext(ctx, insert, KeyToken, s.Token, now); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
	}
	if s.Role != "" {
		if _, err := tx.ExecContext(ctx, insert, KeyRole, string(s.Role), now); err != nil {
			return fmt.Errorf("storing role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credentials: %w", err)
	}
	return nil
}

// Delete removes both rows.
func (b *SQLiteBackend) Delete(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
