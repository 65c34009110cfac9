// Package stores provides the Redis-backed TTL caches behind token
// lifecycle: the revocation denylist and the refresh-token binding store.
//
// # Design
//
// Both stores persist under namespaced keys with a per-key TTL. The refresh
// store's binding mutation is a Lua compare-and-swap keyed by the refresh id,
// so two concurrent renewals of the same refresh token have exactly one
// winner. Transport faults surface as [ErrCacheUnavailable]; callers must
// fail closed.
//
// # What this package must NOT do
//
//   - Decide renewal policy — that belongs to internal/flows.
//   - Parse or verify tokens.
//   - Import aegis or any sibling internal package.
package stores
