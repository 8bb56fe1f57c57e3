package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"judgehost/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetMissingKeyIsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	v, err := c.Get(ctx, "absent")
	if err != nil || v != "" {
		t.Fatalf("expected empty value, got %q %v", v, err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("expected v, got %q", v)
	}
}

func TestLockIsOwnedByToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: %v %v", ok, err)
	}
	if ok, _ := c.TryLock(ctx, "lock", "b", time.Minute); ok {
		t.Fatalf("second holder acquired the lock")
	}
	if err := c.Unlock(ctx, "lock", "b"); !errors.Is(err, cache.ErrLockNotHeld) {
		t.Fatalf("foreign unlock: expected ErrLockNotHeld, got %v", err)
	}
	if err := c.ExtendLock(ctx, "lock", "a", 2*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ttl := mr.TTL("lock"); ttl != 2*time.Minute {
		t.Fatalf("expected extended ttl, got %v", ttl)
	}
	if err := c.Unlock(ctx, "lock", "a"); err != nil {
		t.Fatalf("owner unlock: %v", err)
	}
	if mr.Exists("lock") {
		t.Fatalf("lock key survived unlock")
	}
}

func TestLockWaitsForRelease(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if ok, _ := c.TryLock(ctx, "lock", "a", time.Minute); !ok {
		t.Fatalf("setup lock failed")
	}

	done := make(chan error, 1)
	go func() { done <- c.Lock(ctx, "lock", "b", time.Minute, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	if err := c.Unlock(ctx, "lock", "a"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("lock: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired the lock")
	}
}

func TestLockHonoursContext(t *testing.T) {
	c, _ := newTestCache(t)
	if ok, _ := c.TryLock(context.Background(), "lock", "a", time.Minute); !ok {
		t.Fatalf("setup lock failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Lock(ctx, "lock", "b", time.Minute, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	c, mr := newTestCache(t)
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(context.Background(), "events")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n, err := c.Publish(context.Background(), "events", "s1")
	if err != nil || n != 1 {
		t.Fatalf("publish: %d %v", n, err)
	}
	select {
	case msg := <-sub.Channel():
		if msg.Payload != "s1" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not received")
	}
}
