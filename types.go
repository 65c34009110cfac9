package aegis

import (
	"io"
	"time"

	"github.com/aegisauth/aegis/internal"
	"github.com/aegisauth/aegis/internal/events"
	"github.com/aegisauth/aegis/token"
)

// Claims is the verified claim set of an accepted token.
type Claims = token.Claims

// LoginResult reports everything a transport needs after a successful login.
type LoginResult struct {
	// SessionID is the post-rotation session id the transport must adopt.
	SessionID string

	// OldSessionID is the id destroyed by the fixation rotation, "" when
	// the login started without a session.
	OldSessionID string

	// FixationApplied reports whether an old session was atomically
	// replaced. False for fresh logins and degraded rotations.
	FixationApplied bool

	// Evicted lists the least-recently-used sessions destroyed to admit
	// this login.
	Evicted []string

	Token     string
	Claims    *Claims
	RefreshID string
}

// IssuedToken is the product of [Engine.Issue].
type IssuedToken struct {
	Token     string
	Claims    *Claims
	RefreshID string
}

// RenewOutcome distinguishes a rotated token from an untouched one.
// Callers caching tokens must branch on it (or diff by jti), never on
// object identity.
type RenewOutcome int

const (
	RenewSameToken RenewOutcome = iota
	RenewNewToken
)

// RenewResult is the product of a successful [Engine.Renew].
type RenewResult struct {
	Outcome RenewOutcome

	// Token is the freshly encoded successor, set only for [RenewNewToken].
	Token  string
	Claims *Claims
}

// SessionInfo is the public read model of one active session.
type SessionInfo struct {
	SessionID     string
	Principal     string
	CreatedAt     time.Time
	LastRequestAt time.Time
}

// FingerprintComparator decides whether a presented device fingerprint
// digest matches the stored one. Implementations must be constant-time.
type FingerprintComparator interface {
	Compare(stored, presented [32]byte) bool
}

type constantTimeComparator struct{}

func (constantTimeComparator) Compare(stored, presented [32]byte) bool {
	return internal.FingerprintEqual(stored, presented)
}

// Lifecycle event surface, re-exported so callers never import internal/.

// Event is one lifecycle event delivered to a [Sink].
type Event = events.Event

// Sink receives lifecycle events from the engine's dispatcher.
type Sink = events.Sink

// NoOpSink drops events.
type NoOpSink = events.NoOpSink

// ChannelSink buffers events into a channel for in-process consumers.
type ChannelSink = events.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = events.JSONWriterSink

// Event types carried in [Event.EventType].
const (
	EventSessionRotated  = events.TypeSessionRotated
	EventSessionsEvicted = events.TypeSessionsEvicted
	EventTokenRevoked    = events.TypeTokenRevoked
)

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}
