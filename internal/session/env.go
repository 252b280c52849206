// ABOUTME: Environment overrides for the credential store and unverified token inspection
// ABOUTME: GATEKEEPER_TOKEN / GATEKEEPER_ROLE take precedence over any persisted session

package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Environment variables consulted by FromEnv.
const (
	EnvToken = "GATEKEEPER_TOKEN"
	EnvRole  = "GATEKEEPER_ROLE"
)

// FromEnv returns the session described by the environment, if a token is set.
// A token without a role yields an empty Role.
func FromEnv() (Session, bool) {
	token := strings.TrimSpace(os.Getenv(EnvToken))
	if token == "" {
		return Session{}, false
	}
	return Session{
		Token: token,
		Role:  Role(strings.TrimSpace(os.Getenv(EnvRole))),
	}, true
}

// ErrNotJWT is returned by Inspect for opaque tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// TokenInfo is what can be read from a token without verifying it.
type TokenInfo struct {
	Subject   string
	Issuer    string
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (t TokenInfo) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Inspect decodes JWT claims for display. The signature is NOT verified and
// the result must never be used to grant access.
func Inspect(token string) (TokenInfo, error) {
	if strings.Count(token, ".") != 2 {
		return TokenInfo{}, ErrNotJWT
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	var info TokenInfo
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
	}
	return info, nil
}
