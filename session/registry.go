package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicateSession is returned by Add when the session id already exists.
var ErrDuplicateSession = errors.New("duplicate session id")

// ErrSessionNotFound is returned when a session key does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport-level Redis failures. Callers must
// treat it as a transient fault and fail closed.
var ErrRedisUnavailable = errors.New("redis unavailable")

const addRecordScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

var addRecordLua = redis.NewScript(addRecordScript)

const removeRecordScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var removeRecordLua = redis.NewScript(removeRecordScript)

const touchRecordScript = `
local function write_be64(n)
  local out = {}
  for i = 8, 1, -1 do
    out[i] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(out)
end

local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
local updated = string.sub(data, 1, #data - 8) .. write_be64(tonumber(ARGV[1]))
redis.call("SET", KEYS[1], updated, "PX", ttl)
return 1
`

var touchRecordLua = redis.NewScript(touchRecordScript)

// Registry is the Redis-backed session registry. One key per session holds
// the encoded [Record]; a per-principal SET indexes the session ids.
type Registry struct {
	redis    redis.UniversalClient
	prefix   string
	lifetime time.Duration
}

// NewRegistry creates a [Registry]. prefix namespaces all keys; lifetime is
// the per-session TTL applied on Add and rotation.
func NewRegistry(client redis.UniversalClient, prefix string, lifetime time.Duration) *Registry {
	if prefix == "" {
		prefix = "ag"
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Registry{
		redis:    client,
		prefix:   prefix,
		lifetime: lifetime,
	}
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + ":s:" + sessionID
}

func (r *Registry) principalKey(principal string) string {
	return r.prefix + ":p:" + principal
}

// principalKeyPrefix is handed to Lua scripts that derive the index key
// from a principal decoded out of a stored record.
func (r *Registry) principalKeyPrefix() string {
	return r.prefix + ":p:"
}

// Lifetime reports the configured per-session TTL.
func (r *Registry) Lifetime() time.Duration {
	return r.lifetime
}

// Add inserts a new record. It fails with [ErrDuplicateSession] when the
// session id is already present.
//
//	Performance: 1 Lua EVALSHA (EXISTS + SET + SADD).
func (r *Registry) Add(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	created, err := addRecordLua.Run(
		ctx,
		r.redis,
		[]string{r.key(rec.SessionID), r.principalKey(rec.Principal)},
		data,
		r.lifetime.Milliseconds(),
		rec.SessionID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateSession
	}

	return nil
}

// Get fetches a single record. Returns [ErrSessionNotFound] when absent.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID

	return rec, nil
}

// Remove deletes a record and its index entry. Removing an absent session
// is not an error.
//
//	Performance: 1 GET + 1 Lua EVALSHA.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return err
	}

	_, err = removeRecordLua.Run(
		ctx,
		r.redis,
		[]string{r.key(sessionID), r.principalKey(rec.Principal)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Touch updates lastRequestAt while preserving the key's TTL. Touching an
// absent session is a no-op and reports found=false so callers can treat
// the session as gone.
//
//	Performance: 1 Lua EVALSHA (GET + PTTL + SET).
func (r *Registry) Touch(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	touched, err := touchRecordLua.Run(
		ctx,
		r.redis,
		[]string{r.key(sessionID)},
		now.Unix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return touched == 1, nil
}

// AllSessions returns a point-in-time snapshot of the principal's sessions.
// Never nil; ids whose keys expired between the index read and the fetch
// are skipped and pruned from the index.
//
//	Performance: 1 SMEMBERS + pipelined GETs.
func (r *Registry) AllSessions(ctx context.Context, principal string) ([]*Record, error) {
	ids, err := r.redis.SMembers(ctx, r.principalKey(principal)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		rec.SessionID = ids[i]
		records = append(records, rec)
	}

	if len(stale) > 0 {
		// Expired keys leave index entries behind; prune opportunistically.
		if err := r.redis.SRem(ctx, r.principalKey(principal), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return records, nil
}

// ActiveSessionCount returns the number of tracked session ids for a principal.
func (r *Registry) ActiveSessionCount(ctx context.Context, principal string) (int, error) {
	count, err := r.redis.SCard(ctx, r.principalKey(principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
