package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps transport-level cache failures. Callers treat it
// as a transient fault and fail closed.
var ErrCacheUnavailable = errors.New("cache unavailable")

// RevocationStore is the jti denylist. An entry's existence means the token
// must be rejected even if otherwise well-formed and unexpired; the TTL is
// the token's remaining lifetime, so entries disappear exactly when the
// token they block would have expired anyway.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationStore(client redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "agrv"
	}
	return &RevocationStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RevocationStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// Revoke inserts jti into the denylist for ttl. A non-positive ttl is a
// no-op: the token is already past its lifetime and cannot validate.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti is denylisted.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n == 1, nil
}

// Delete removes jti from the denylist. Idempotent.
func (s *RevocationStore) Delete(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, s.key(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
