package session

// Record is a single active session. Records are exclusively owned by the
// [Registry]; callers hold only the SessionID and mutate through Registry
// operations.
type Record struct {
	SessionID string
	Principal string

	// Fingerprint is the SHA-256 digest of the opaque transport-supplied
	// device fingerprint captured at login.
	Fingerprint [32]byte

	CreatedAt     int64
	LastRequestAt int64
}
