// Package session provides the credential store shared by the request
// dispatcher and the navigation guard.
//
// # Data Model
//
// A Session is the pair (token, role). Both fields are optional; the zero
// value is the anonymous session. The pair is only ever written as a unit:
//
//	store.Set(ctx, session.Session{Token: "t1", Role: session.RoleAdmin})
//	store.Clear(ctx)
//
// Readers use Get with the well-known keys or take a Session snapshot:
//
//	token, ok := store.Get(session.KeyToken)
//	snap := store.Session()
//
// # Stores
//
//   - MemoryStore: process-local, no persistence (tests, anonymous runs)
//   - PersistentStore: in-memory snapshot written through to a Backend
//
// Reads never touch the backend, so they never block and never fail.
//
// # Backends
//
//   - FileBackend: YAML file under $XDG_CONFIG_HOME/gatekeeper (mode 0600)
//   - SQLiteBackend: key/value table in a SQLite database (WAL mode)
//   - RedisBackend: one hash shared by every client process on the host
//
// # Environment
//
// GATEKEEPER_TOKEN and GATEKEEPER_ROLE override whatever is persisted; see
// FromEnv. Inspect decodes JWT claims for display only and never verifies
// signatures.
package session
