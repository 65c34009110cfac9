package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRegistryTest(t *testing.T) (*Registry, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := NewRegistry(rdb, "ag", time.Hour)
	return registry, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(id, principal string, lastRequestAt int64) *Record {
	now := time.Now().Unix()
	return &Record{
		SessionID:     id,
		Principal:     principal,
		Fingerprint:   [32]byte{1},
		CreatedAt:     now,
		LastRequestAt: lastRequestAt,
	}
}

func TestAddRejectsDuplicateSessionID(t *testing.T) {
	registry, _, done := newRegistryTest(t)
	defer done()
	ctx := context.Background()

	if err := registry.Add(ctx, testRecord("sid-1", "alice", 10)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := registry.Add(ctx, testRecord("sid-1", "alice", 20))
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestRemoveIdempotentAndIndexConsistent(t *testing.T) {
	registry, rdb, done := newRegistryTest(t)
	defer done()
	ctx := context.Background()

	rec := testRecord("sid-1", "alice", 10)
	if err := registry.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := registry.Remove(ctx, "sid-1"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := registry.Remove(ctx, "sid-1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	members, err := rdb.SMembers(ctx, registry.principalKey("alice")).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty principal index, got %v", members)
	}
}

func TestTouchUpdatesLastRequestAtAndKeepsTTL(t *testing.T) {
	registry, rdb, done := newRegistryTest(t)
	defer done()
	ctx := context.Background()

	rec := testRecord("sid-1", "alice", 10)
	if err := registry.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}

	touchedAt := time.Unix(4242424242, 0)
	found, err := registry.Touch(ctx, "sid-1", touchedAt)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !found {
		t.Fatal("expected touch to find the session")
	}

	got, err := registry.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastRequestAt != touchedAt.Unix() {
		t.Fatalf("expected lastRequestAt %d, got %d", touchedAt.Unix(), got.LastRequestAt)
	}
	if got.Principal != "alice" || got.CreatedAt != rec.CreatedAt {
		t.Fatalf("touch corrupted record: %+v", got)
	}

	ttl, err := rdb.PTTL(ctx, registry.key("sid-1")).Result()
	if err != nil {
		t.Fatalf("pttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected preserved ttl, got %v", ttl)
	}
}

func TestTouchAbsentSessionIsNoOp(t *testing.T) {
	registry, _, done := newRegistryTest(t)
	defer done()

	found, err := registry.Touch(context.Background(), "missing", time.Now())
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if found {
		t.Fatal("expected found=false for absent session")
	}
}

func TestAllSessionsSnapshotNeverNilAndPrunesStaleIndex(t *testing.T) {
	registry, rdb, done := newRegistryTest(t)
	defer done()
	ctx := context.Background()

	records, err := registry.AllSessions(ctx, "nobody")
	if err != nil {
		t.Fatalf("all sessions: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil snapshot, got %v", records)
	}

	for _, id := range []string{"sid-1", "sid-2"} {
		if err := registry.Add(ctx, testRecord(id, "alice", 10)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	// Simulate a key expiring underneath the index.
	if err := rdb.Del(ctx, registry.key("sid-2")).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}

	records, err = registry.AllSessions(ctx, "alice")
	if err != nil {
		t.Fatalf("all sessions: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "sid-1" {
		t.Fatalf("expected only sid-1, got %v", records)
	}

	members, err := rdb.SMembers(ctx, registry.principalKey("alice")).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 || members[0] != "sid-1" {
		t.Fatalf("expected stale id pruned from index, got %v", members)
	}
}

func TestGetAbsentSessionReturnsNotFound(t *testing.T) {
	registry, _, done := newRegistryTest(t)
	defer done()

	_, err := registry.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
