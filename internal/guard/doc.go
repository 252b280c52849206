// Package guard decides whether a route transition may proceed for the
// current session. Decisions are values, not errors: an unauthenticated or
// wrong-role navigation yields a Redirect to a symbolic route name, resolved
// to a path by the caller.
package guard
