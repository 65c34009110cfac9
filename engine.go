package aegis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisauth/aegis/internal"
	"github.com/aegisauth/aegis/internal/events"
	"github.com/aegisauth/aegis/internal/metrics"
	"github.com/aegisauth/aegis/internal/stores"
	"github.com/aegisauth/aegis/session"
	"github.com/aegisauth/aegis/token"
)

// Engine is the session and token lifecycle coordinator. Construct it with
// [Builder.Build]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config      Config
	logger      *zap.Logger
	registry    *session.Registry
	controller  *session.Controller
	fixation    *session.FixationGuard
	codec       *token.Codec
	revocation  *stores.RevocationStore
	refresh     *stores.RefreshStore
	dispatcher  *events.Dispatcher
	metrics     *metrics.Metrics
	fingerprint FingerprintComparator
}

func newRevocationStore(client redis.UniversalClient, prefix string) *stores.RevocationStore {
	return stores.NewRevocationStore(client, prefix+"rv")
}

func newRefreshStore(client redis.UniversalClient, prefix string) *stores.RefreshStore {
	return stores.NewRefreshStore(client, prefix+"rt")
}

// LoginOptions carries the transport-supplied inputs of one login.
type LoginOptions struct {
	// OldSessionID is the pre-authentication session id, "" when the
	// transport had none. It is destroyed by the fixation rotation.
	OldSessionID string

	// CandidateSessionID lets the transport dictate the post-login id.
	// Empty means a fresh random id.
	CandidateSessionID string

	// Fingerprint is an opaque device identifier captured at login and
	// checked by [Engine.VerifyFingerprint] later.
	Fingerprint []byte

	Authorities []string
	Custom      map[string]any
}

// Login admits, rotates, and issues for an already-authenticated principal:
// concurrent-session admission first, then session-fixation rotation, then
// token issuance. Evicted session ids, the rotation outcome, and the issued
// token all land in the returned [LoginResult].
func (e *Engine) Login(ctx context.Context, principal string, opts LoginOptions) (*LoginResult, error) {
	now := time.Now()

	candidateID := opts.CandidateSessionID
	if candidateID == "" {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		candidateID = sid.String()
	}

	decision, err := e.controller.AdmitLogin(ctx, principal, candidateID, session.Policy{
		MaxSessions:                e.config.Session.MaxSessions,
		ExceptionIfMaximumExceeded: e.config.Session.ExceptionIfMaximumExceeded,
	})
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	switch decision.Kind {
	case session.Reject:
		e.metrics.Inc(metrics.MetricLoginRejected)
		return nil, ErrSessionLimitExceeded
	case session.AllowAfterEviction:
		if err := e.evictSessions(ctx, principal, decision.Evict); err != nil {
			return nil, err
		}
	}

	rotation, err := e.fixation.OnLoginSuccess(
		ctx, opts.OldSessionID, candidateID, principal, opts.Fingerprint, now,
	)
	if err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			e.metrics.Inc(metrics.MetricLoginRejected)
			return nil, ErrDuplicateSession
		}
		return nil, e.mapStoreErr(err)
	}

	if rotation.FixationApplied {
		e.metrics.Inc(metrics.MetricSessionRotated)
		e.emit(ctx, events.Rotated(principal, rotation.OldSessionID, rotation.Record.SessionID))
	} else if opts.OldSessionID != "" && rotation.Record.SessionID == opts.OldSessionID {
		e.metrics.Inc(metrics.MetricFixationDegraded)
	}

	issued, err := e.Issue(ctx, principal, opts.Authorities, opts.Custom)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.MetricLoginSuccess)

	return &LoginResult{
		SessionID:       rotation.Record.SessionID,
		OldSessionID:    rotation.OldSessionID,
		FixationApplied: rotation.FixationApplied,
		Evicted:         decision.Evict,
		Token:           issued.Token,
		Claims:          issued.Claims,
		RefreshID:       issued.RefreshID,
	}, nil
}

// evictSessions destroys the sessions the admission decision marked. Each id
// is re-checked against the registry first: a session that expired or logged
// out between snapshot and eviction is simply skipped.
func (e *Engine) evictSessions(ctx context.Context, principal string, ids []string) error {
	evicted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := e.registry.Get(ctx, id); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				continue
			}
			return e.mapStoreErr(err)
		}
		if err := e.registry.Remove(ctx, id); err != nil {
			return e.mapStoreErr(err)
		}
		evicted = append(evicted, id)
		e.metrics.Inc(metrics.MetricSessionsEvicted)
	}

	if len(evicted) > 0 {
		e.emit(ctx, events.Evicted(principal, evicted))
	}

	return nil
}

// Logout destroys a session. Logging out an unknown session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.registry.Remove(ctx, sessionID); err != nil {
		return e.mapStoreErr(err)
	}
	e.metrics.Inc(metrics.MetricSessionInvalidated)
	return nil
}

// TouchSession marks request activity on a session, feeding the
// least-recently-used eviction order. Reports found=false when the session
// no longer exists.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) (bool, error) {
	found, err := e.registry.Touch(ctx, sessionID, time.Now())
	if err != nil {
		return false, e.mapStoreErr(err)
	}
	return found, nil
}

// ActiveSessions returns a point-in-time snapshot of the principal's
// sessions. Never nil.
func (e *Engine) ActiveSessions(ctx context.Context, principal string) ([]SessionInfo, error) {
	records, err := e.registry.AllSessions(ctx, principal)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			SessionID:     rec.SessionID,
			Principal:     rec.Principal,
			CreatedAt:     time.Unix(rec.CreatedAt, 0),
			LastRequestAt: time.Unix(rec.LastRequestAt, 0),
		})
	}

	return infos, nil
}

// VerifyFingerprint checks a presented device fingerprint against the one
// captured at login.
func (e *Engine) VerifyFingerprint(ctx context.Context, sessionID string, presented []byte) error {
	rec, err := e.registry.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return e.mapStoreErr(err)
	}

	if !e.fingerprint.Compare(rec.Fingerprint, internal.FingerprintDigest(presented)) {
		return ErrFingerprintMismatch
	}

	return nil
}

// Ping reports Redis availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	latency, err := e.registry.Ping(ctx)
	if err != nil {
		return latency, e.mapStoreErr(err)
	}
	return latency, nil
}

// Close flushes and stops the event dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	e.dispatcher.Close()
}

func (e *Engine) emit(ctx context.Context, event events.Event) {
	event.Timestamp = time.Now()
	e.dispatcher.Emit(ctx, event)
}

func (e *Engine) mapStoreErr(err error) error {
	if errors.Is(err, session.ErrRedisUnavailable) || errors.Is(err, stores.ErrCacheUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
