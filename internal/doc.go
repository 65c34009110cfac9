// Package internal contains helper utilities that are intentionally private to aegis,
// including secure id generation and fingerprint digest helpers.
//
// # Sub-packages
//
//   - events — async lifecycle event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for token validation and renewal
//   - metrics — lock-free lifecycle counters
//   - stores — Redis-backed revocation denylist and refresh-token binding store
//
// # What this package must NOT do
//
//   - Export types that appear in the public aegis API.
//   - Be imported by any package outside the aegis module.
package internal
