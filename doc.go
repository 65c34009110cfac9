// Package aegis manages the lifecycle of a principal's sessions and bearer
// tokens under concurrent traffic: it bounds simultaneously active sessions
// per principal with least-recently-used eviction, rotates the session
// identifier on login to defeat session fixation, and issues, validates,
// renews, and revokes signed JWT tokens against a Redis-backed revocation
// denylist and refresh-token store.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// aegis is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types (LoginResult, SessionInfo, Snapshot).
// All internal coordination — lifecycle state machines, session encoding,
// store access, event dispatch — lives under internal/ and is never
// exported. The session and token subpackages are importable on their own
// for callers that only need one half of the system.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Authenticate principals. Callers verify credentials first; Login is
//     the post-authentication step.
//
// # Performance contract
//
// Validate is the hot path: one Redis EXISTS for the revocation check plus
// signature verification, nothing else. Login is allowed one registry
// snapshot, one rotation script, and one optional refresh-store write.
package aegis
