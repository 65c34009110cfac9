package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Lifecycle event types published by the engine.
const (
	TypeSessionRotated  = "session.rotated"
	TypeSessionsEvicted = "sessions.evicted"
	TypeTokenRevoked    = "token.revoked"
)

// Event is the canonical lifecycle event model. Fields not relevant to a
// given event type are left zero.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	Principal    string    `json:"principal,omitempty"`
	OldSessionID string    `json:"old_session_id,omitempty"`
	NewSessionID string    `json:"new_session_id,omitempty"`
	SessionIDs   []string  `json:"session_ids,omitempty"`
	JTI          string    `json:"jti,omitempty"`
}

// Rotated builds a session.rotated event. oldSessionID is empty for a
// fresh login with no pre-existing session.
func Rotated(principal, oldSessionID, newSessionID string) Event {
	return Event{
		EventType:    TypeSessionRotated,
		Principal:    principal,
		OldSessionID: oldSessionID,
		NewSessionID: newSessionID,
	}
}

// Evicted builds a sessions.evicted event covering every id removed by a
// single admission decision.
func Evicted(principal string, sessionIDs []string) Event {
	return Event{
		EventType:  TypeSessionsEvicted,
		Principal:  principal,
		SessionIDs: sessionIDs,
	}
}

// Revoked builds a token.revoked event. principal may be empty when only
// the jti is known.
func Revoked(principal, jti string) Event {
	return Event{
		EventType: TypeTokenRevoked,
		Principal: principal,
		JTI:       jti,
	}
}

// Sink receives published events. Delivery is fire-and-forget; sinks must
// not assume they run on the publishing goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
