// ABOUTME: Session data model and the credential store interface read by the dispatcher and guard
// ABOUTME: Defines Role, Session, the Store contract and the two well-known store keys

package session

import (
	"context"
	"errors"
)

// Well-known credential store keys.
const (
	KeyToken = "token"
	KeyRole  = "role"
)

// Role is the principal's role as reported by the login endpoint.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ValidRoles lists all roles the client knows how to route.
var ValidRoles = []Role{
	RoleAdmin,
	RoleUser,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ErrClosed is returned by writes against a store whose backend has been closed.
var ErrClosed = errors.New("session store closed")

// Session is the client-held proof of authentication plus its role.
// The zero value is the anonymous session.
type Session struct {
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
	Role  Role   `yaml:"role,omitempty" json:"role,omitempty"`
}

// HasToken reports whether a token is present.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// IsAnonymous reports whether neither field is set.
func (s Session) IsAnonymous() bool {
	return s.Token == "" && s.Role == ""
}

// Store is the credential store shared by the request dispatcher and the
// navigation guard. Reads never block on I/O and never fail; an unknown key
// reads as absent. Set and Clear always write token and role as one unit.
type Store interface {
	// Get returns the value stored under key.
	Get(key string) (string, bool)

	// Session returns a consistent snapshot of token and role.
	Session() Session

	// Set replaces token and role together.
	Set(ctx context.Context, s Session) error

	// Clear removes token and role together.
	Clear(ctx context.Context) error
}

// lookup resolves a well-known key against a snapshot.
func lookup(s Session, key string) (string, bool) {
	switch key {
	case KeyToken:
		return s.Token, s.Token != ""
	case KeyRole:
		return string(s.Role), s.Role != ""
	default:
		return "", false
	}
}
