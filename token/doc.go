// Package token implements the stateless claims codec: building and parsing
// signed bearer tokens.
//
// # Design
//
// The codec is a pure function over a configured signer (HS256 or Ed25519).
// Decode verifies the signature and shape only — it deliberately performs no
// expiry, revocation, or session checks. Lifecycle policy (clock skew,
// denylist, renewal) belongs to the coordinator, which needs to inspect
// expired tokens that the codec must still parse.
//
// # What this package must NOT do
//
//   - Know about revocation, refresh tokens, or sessions.
//   - Reject a well-signed token because of its timestamps.
//   - Implement signing primitives (keys are supplied, never generated).
package token
