package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshNotFound is returned when the refresh record does not exist.
var ErrRefreshNotFound = errors.New("refresh record not found")

// ErrRefreshExpired is returned when the refresh record outlived its expiry.
var ErrRefreshExpired = errors.New("refresh record expired")

// ErrJtiMismatch is returned when a compare-and-swap loses the race: the
// binding no longer points at the expected jti.
var ErrJtiMismatch = errors.New("refresh binding jti mismatch")

const refreshRecordVersionV1 = 1

const (
	casStatusNotFound    int64 = 0
	casStatusExpired     int64 = 1
	casStatusMismatch    int64 = 2
	casStatusSwapped     int64 = 3
	casStatusInvalidBlob int64 = 4
)

const swapJtiScript = `
local function read_be64(s, i)
  local n = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local version = string.byte(data, 1)
if version ~= 1 then
  return {4}
end
local jti_len = string.byte(data, 2)
if not jti_len or #data < 2 + jti_len + 8 then
  return {4}
end
local bound = string.sub(data, 3, 2 + jti_len)
local expires_at = read_be64(data, 3 + jti_len)
if not expires_at then
  return {4}
end

if expires_at <= tonumber(ARGV[3]) then
  redis.call("DEL", KEYS[1])
  return {1}
end

if bound ~= ARGV[1] then
  return {2}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  redis.call("DEL", KEYS[1])
  return {1}
end

local tail = string.sub(data, 3 + jti_len)
local updated = string.char(1) .. string.char(#ARGV[2]) .. ARGV[2] .. tail
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {3, updated}
`

var swapJtiLua = redis.NewScript(swapJtiScript)

// RefreshRecord binds a refresh-token id to the jti it may renew.
type RefreshRecord struct {
	BoundJti  string
	ExpiresAt int64
}

func encodeRefreshRecord(rec *RefreshRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(refreshRecordVersionV1)

	if len(rec.BoundJti) > 255 {
		return nil, errors.New("bound jti too long")
	}
	buf.WriteByte(byte(len(rec.BoundJti)))
	buf.WriteString(rec.BoundJti)

	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != refreshRecordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	rec := &RefreshRecord{}

	jtiLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	jti := make([]byte, jtiLen)
	if _, err := io.ReadFull(reader, jti); err != nil {
		return nil, err
	}
	rec.BoundJti = string(jti)

	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}

	return rec, nil
}

// RefreshStore maps refresh-token ids to their bound jti with a TTL.
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(client redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "agrt"
	}
	return &RefreshStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RefreshStore) key(refreshID string) string {
	return s.prefix + ":" + refreshID
}

// Put persists the binding with the given TTL.
func (s *RefreshStore) Put(ctx context.Context, refreshID string, rec *RefreshRecord, ttl time.Duration) error {
	data, err := encodeRefreshRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(refreshID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get fetches the binding. Records past their embedded expiry are deleted
// and reported as expired even when the cache key still lingers.
func (s *RefreshStore) Get(ctx context.Context, refreshID string) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, s.key(refreshID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	rec, err := decodeRefreshRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		if err := s.redis.Del(ctx, s.key(refreshID)).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		return nil, errors.Join(ErrRefreshNotFound, ErrRefreshExpired)
	}

	return rec, nil
}

// Delete removes the binding. Idempotent.
func (s *RefreshStore) Delete(ctx context.Context, refreshID string) error {
	if err := s.redis.Del(ctx, s.key(refreshID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// CompareAndSwapJti atomically re-binds refreshID from expectedJti to
// newJti, preserving the record's expiry and TTL. Exactly one of any set of
// concurrent callers succeeds; the rest get [ErrJtiMismatch].
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (s *RefreshStore) CompareAndSwapJti(
	ctx context.Context,
	refreshID, expectedJti, newJti string,
) (*RefreshRecord, error) {
	if len(newJti) > 255 {
		return nil, errors.New("new jti too long")
	}

	result, err := swapJtiLua.Run(
		ctx,
		s.redis,
		[]string{s.key(refreshID)},
		expectedJti,
		newJti,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid swap script response", ErrCacheUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid swap script status", ErrCacheUnavailable)
	}

	switch code {
	case casStatusNotFound:
		return nil, ErrRefreshNotFound
	case casStatusExpired:
		return nil, errors.Join(ErrRefreshNotFound, ErrRefreshExpired)
	case casStatusMismatch:
		return nil, ErrJtiMismatch
	case casStatusSwapped:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated record payload", ErrCacheUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated record payload", ErrCacheUnavailable)
		}
		return decodeRefreshRecord(blob)
	case casStatusInvalidBlob:
		return nil, fmt.Errorf("%w: refresh record corrupt", ErrCacheUnavailable)
	default:
		return nil, fmt.Errorf("%w: unknown swap script status", ErrCacheUnavailable)
	}
}
