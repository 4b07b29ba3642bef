package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newRedisClientForTest starts a miniredis server torn down with the test.
func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestInMemoryRevocationCacheStoreExpires(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := NewInMemoryRevocationCacheStore()
	store.now = clock.Now

	if err := store.Add(ctx, "h", time.Minute); err != nil {
		t.Fatalf("add: %v", err)
	}
	if hit, _ := store.Contains(ctx, "h"); !hit {
		t.Fatal("expected hit before expiry")
	}
	clock.Advance(time.Minute)
	if hit, _ := store.Contains(ctx, "h"); hit {
		t.Fatal("expected miss at expiry")
	}
	if err := store.Add(ctx, "zero", 0); err != nil {
		t.Fatalf("add zero ttl: %v", err)
	}
	if hit, _ := store.Contains(ctx, "zero"); hit {
		t.Fatal("expected zero ttl to be ignored")
	}
}

func TestRedisRevocationCacheStoreSetGetAndStale(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	store := NewRedisRevocationCacheStore(client, "auth_test")

	hit, err := store.Contains(ctx, "jti-hash")
	if err != nil {
		t.Fatalf("initial get: %v", err)
	}
	if hit {
		t.Fatal("expected initial miss")
	}
	if err := store.Add(ctx, "jti-hash", 2*time.Second); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !server.Exists("auth_test:revoked_access:jti-hash") {
		t.Fatal("expected namespaced key in redis")
	}
	if hit, err = store.Contains(ctx, "jti-hash"); err != nil || !hit {
		t.Fatalf("expected hit after add, hit=%v err=%v", hit, err)
	}
	server.FastForward(3 * time.Second)
	if hit, err = store.Contains(ctx, "jti-hash"); err != nil || hit {
		t.Fatalf("expected miss after ttl, hit=%v err=%v", hit, err)
	}
}

func TestRevocationServiceFallsBackToDatabase(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	_, client := newRedisClientForTest(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	writer := NewRevocationService(h.repos.Revocations, NewRedisRevocationCacheStore(client, "auth"), log).WithClock(h.clock.Now)
	if err := writer.Revoke(ctx, "jti-1", 1, h.clock.Now().Add(10*time.Minute), "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// A reader without the cache still sees the revocation.
	reader := NewRevocationService(h.repos.Revocations, nil, log).WithClock(h.clock.Now)
	revoked, err := reader.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected db hit, revoked=%v err=%v", revoked, err)
	}
	if revoked, _ := reader.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatal("expected unrelated jti to be valid")
	}

	h.clock.Advance(10 * time.Minute)
	if revoked, _ := reader.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected entry to lapse with the token")
	}
}

func TestRevocationServiceSkipsExpiredTokens(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	if err := h.revocations.Revoke(ctx, "old", 1, h.clock.Now().Add(-time.Second), "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	var count int64
	if err := h.db.Table("access_token_revocations").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no row for an already expired token, got %d", count)
	}
}
