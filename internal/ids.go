package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// SessionID is a 16-byte random identifier rendered as compact base64url.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewJTI returns a unique token id for the jti claim.
func NewJTI() string {
	return uuid.NewString()
}

// NewRefreshID returns an opaque refresh-token identifier.
func NewRefreshID() string {
	return uuid.NewString()
}

// FingerprintDigest reduces an opaque device fingerprint to a fixed-size
// digest so records stay bounded regardless of what the transport supplies.
func FingerprintDigest(fingerprint []byte) [32]byte {
	return sha256.Sum256(fingerprint)
}

// FingerprintEqual compares two digests in constant time.
func FingerprintEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
