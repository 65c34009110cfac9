// Package session implements the Redis-backed session registry, the
// concurrent-session admission controller, and the fixation guard.
//
// # Components
//
//   - [Registry] — principal-indexed session records with per-key TTL.
//   - [Controller] — max-sessions admission with deterministic LRU eviction.
//   - [FixationGuard] — atomic session-id rotation on login.
//
// # Design
//
// Each session lives in its own Redis key as a versioned binary blob; a
// per-principal SET indexes the ids so snapshots are two round-trips
// (SMEMBERS + pipelined GET). Every multi-key mutation runs as a Lua script
// so concurrent logins from the same principal interleave safely: Add is
// create-if-absent, Touch splices the trailing last-request timestamp while
// preserving TTL, and rotation is a single read-delete-write critical
// section keyed by the old session id.
//
// # What this package must NOT do
//
//   - Issue, validate, or revoke tokens.
//   - Decide eviction policy outside [Decide].
//   - Fail open on Redis errors.
package session
