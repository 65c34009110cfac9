package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisauth/aegis/internal"
)

const rotateSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
local plen = string.byte(data, 2)
local principal = string.sub(data, 3, 2 + plen)
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[5] .. principal, ARGV[1])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SADD", KEYS[3], ARGV[4])
return 1
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// Rotation is the outcome of FixationGuard.OnLoginSuccess.
type Rotation struct {
	Record          *Record
	OldSessionID    string
	FixationApplied bool
}

// FixationGuard rotates the session identifier on successful authentication.
// Rotation of a pre-existing session is a single Lua critical section keyed
// by the old session key, so two concurrent logins reusing the same old id
// cannot both win; the loser falls back to creating a fresh session. A
// candidate id colliding with any live session aborts with
// [ErrDuplicateSession] before anything is destroyed, and the old id is
// unindexed from the principal decoded out of its own record, so a stale
// cookie from another principal cannot leave their index dirty.
type FixationGuard struct {
	registry *Registry
	logger   *zap.Logger
}

func NewFixationGuard(registry *Registry, logger *zap.Logger) *FixationGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixationGuard{
		registry: registry,
		logger:   logger,
	}
}

// OnLoginSuccess allocates the post-login session. oldSessionID is the
// transport's pre-existing session id ("" when none). candidateID lets the
// transport dictate the replacement id; when empty a fresh random id is
// generated. A transport that hands back candidateID == oldSessionID failed
// to rotate: this is logged as a non-fatal warning and the login proceeds
// with fixation protection degraded.
func (g *FixationGuard) OnLoginSuccess(
	ctx context.Context,
	oldSessionID, candidateID, principal string,
	fingerprint []byte,
	now time.Time,
) (*Rotation, error) {
	newID := candidateID
	if newID == "" {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		newID = sid.String()
	}

	rec := &Record{
		SessionID:     newID,
		Principal:     principal,
		Fingerprint:   internal.FingerprintDigest(fingerprint),
		CreatedAt:     now.Unix(),
		LastRequestAt: now.Unix(),
	}

	if oldSessionID == "" {
		if err := g.registry.Add(ctx, rec); err != nil {
			return nil, err
		}
		return &Rotation{Record: rec}, nil
	}

	if oldSessionID == newID {
		// The transport failed to actually rotate. Security degrades but the
		// login is not aborted.
		g.logger.Warn("session id unchanged after rotation, fixation protection degraded",
			zap.String("session_id", oldSessionID),
		)
		found, err := g.registry.Touch(ctx, oldSessionID, now)
		if err != nil {
			return nil, err
		}
		if found {
			existing, err := g.registry.Get(ctx, oldSessionID)
			if err == nil {
				return &Rotation{Record: existing}, nil
			}
			if !errors.Is(err, ErrSessionNotFound) {
				return nil, err
			}
		}
		// Old session already expired; degradation stays non-fatal.
		if err := g.registry.Add(ctx, rec); err != nil {
			return nil, err
		}
		return &Rotation{Record: rec}, nil
	}

	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	rotated, err := rotateSessionLua.Run(
		ctx,
		g.registry.redis,
		[]string{
			g.registry.key(oldSessionID),
			g.registry.key(newID),
			g.registry.principalKey(principal),
		},
		oldSessionID,
		data,
		g.registry.lifetime.Milliseconds(),
		newID,
		g.registry.principalKeyPrefix(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch rotated {
	case 0:
		// Old session gone, or a concurrent rotation of the same id won.
		if err := g.registry.Add(ctx, rec); err != nil {
			return nil, err
		}
		return &Rotation{Record: rec}, nil
	case 2:
		// The candidate id already names a live session, possibly another
		// principal's. Nothing was touched.
		return nil, ErrDuplicateSession
	}

	return &Rotation{
		Record:          rec,
		OldSessionID:    oldSessionID,
		FixationApplied: true,
	}, nil
}
