package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*RefreshStore, *RevocationStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRefreshStore(rdb, "agrt"), NewRevocationStore(rdb, "agrv"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRefreshPutGetRoundTrip(t *testing.T) {
	refresh, _, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	rec := &RefreshRecord{BoundJti: "jti-1", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := refresh.Put(ctx, "rid-1", rec, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := refresh.Get(ctx, "rid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BoundJti != "jti-1" || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRefreshGetAbsentAndExpired(t *testing.T) {
	refresh, _, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	_, err := refresh.Get(ctx, "missing")
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	stale := &RefreshRecord{BoundJti: "jti-1", ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	if err := refresh.Put(ctx, "rid-stale", stale, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, err = refresh.Get(ctx, "rid-stale")
	if !errors.Is(err, ErrRefreshNotFound) || !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected expired sentinel, got %v", err)
	}
}

func TestCompareAndSwapJtiSentinels(t *testing.T) {
	refresh, _, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	_, err := refresh.CompareAndSwapJti(ctx, "missing", "a", "b")
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	rec := &RefreshRecord{BoundJti: "jti-old", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := refresh.Put(ctx, "rid-1", rec, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err = refresh.CompareAndSwapJti(ctx, "rid-1", "jti-wrong", "jti-new")
	if !errors.Is(err, ErrJtiMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	swapped, err := refresh.CompareAndSwapJti(ctx, "rid-1", "jti-old", "jti-new")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if swapped.BoundJti != "jti-new" || swapped.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("unexpected swapped record: %+v", swapped)
	}

	got, err := refresh.Get(ctx, "rid-1")
	if err != nil {
		t.Fatalf("get after swap: %v", err)
	}
	if got.BoundJti != "jti-new" {
		t.Fatalf("binding not rotated: %+v", got)
	}
}

func TestCompareAndSwapJtiSingleWinner(t *testing.T) {
	refresh, _, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	rec := &RefreshRecord{BoundJti: "jti-old", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := refresh.Put(ctx, "rid-race", rec, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		newJti := "jti-" + string(rune('a'+i))
		go func(jti string) {
			defer wg.Done()
			<-start
			_, err := refresh.CompareAndSwapJti(ctx, "rid-race", "jti-old", jti)
			results <- err
		}(newJti)
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrJtiMismatch):
		default:
			t.Fatalf("unexpected swap error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestRevocationLifecycle(t *testing.T) {
	_, revocation, mr, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	revoked, err := revocation.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatal("unexpected revocation")
	}

	if err := revocation.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = revocation.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected revocation")
	}

	// Entry disappears when the token it blocks would have expired anyway.
	mr.FastForward(2 * time.Minute)
	revoked, err = revocation.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatal("expected revocation entry to expire")
	}
}

func TestRevokeNonPositiveTTLIsNoOp(t *testing.T) {
	_, revocation, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := revocation.Revoke(ctx, "jti-dead", -time.Second); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := revocation.IsRevoked(ctx, "jti-dead")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatal("no-op revoke must not create an entry")
	}
}
