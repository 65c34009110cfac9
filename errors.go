package aegis

import "errors"

var (
	// ErrSessionLimitExceeded rejects a login when the principal is at the
	// session cap and the policy refuses eviction.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrDuplicateSession rejects a login reusing an already-active
	// candidate session id.
	ErrDuplicateSession = errors.New("duplicate session id")
	// ErrSessionNotFound reports an absent or expired session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFingerprintMismatch reports a device fingerprint that does not
	// match the one captured at login.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
	// ErrTokenMalformed reports a structurally broken token or one missing
	// the jti/exp claims the lifecycle depends on.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenBadSignature reports a token whose signature does not verify.
	ErrTokenBadSignature = errors.New("token signature invalid")
	// ErrTokenRevoked reports a denylisted token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired reports a token past its expiry plus clock skew.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshInvalid reports an absent or expired refresh-token binding.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRenewConflict reports a renewal that lost the race against a
	// concurrent renewal of the same refresh token.
	ErrRenewConflict = errors.New("concurrent renewal conflict")
	// ErrStoreUnavailable wraps Redis transport faults. Validation fails
	// closed on it.
	ErrStoreUnavailable = errors.New("lifecycle store unavailable")
)
