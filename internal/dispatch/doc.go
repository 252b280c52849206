// Package dispatch is the single entry point for outbound HTTP calls.
//
// # Headers
//
// For every request the dispatcher:
//
//   - prefixes the path with the configured base URL (default http://127.0.0.1:5000/api)
//   - copies the caller's headers
//   - sets Content-Type: application/json when a body is present, no
//     Content-Type was given, and the body is not a form (*Form, url.Values)
//   - sets Authorization: Bearer <token> when the session holds a token
//
// When the caller also passes Authorization, the Precedence rule decides:
// PrecedenceSession (the default) replaces it with the session token,
// PrecedenceCaller keeps it.
//
// # Cookies
//
// The HTTP client always carries a cookie jar, so cookies set by the API are
// sent back on later requests without caller involvement.
//
// # Errors
//
// HTTP error statuses are not errors:
//
//	resp, err := d.PostJSON(ctx, "/login", creds)
//	if err != nil {
//	    // ErrTransport, ErrEncodeBody or ErrInvalidRequest
//	}
//	if resp.StatusCode == http.StatusUnauthorized {
//	    // caller decides
//	}
//
// The dispatcher never retries and never caches.
package dispatch
