package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/haulbid/haulbid-backend/pkg/redis"
)

func newLockClient(t *testing.T) *redis.Client {
	t.Helper()
	mini := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.FromRedisClient(raw)
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := newLockClient(t)
	key := client.LockKey("cron-test")

	first, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(client, key, time.Minute)

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseIgnoresForeignOwner(t *testing.T) {
	client := newLockClient(t)
	key := client.LockKey("cron-owner")

	holder, _ := NewRedisLock(client, key, time.Minute)
	ctx := context.Background()
	if ok, err := holder.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// a second instance that lost the race must not free the holder's lock
	loser, _ := NewRedisLock(client, key, time.Minute)
	if ok, _ := loser.Acquire(ctx); ok {
		t.Fatal("loser should not acquire")
	}
	if err := loser.Release(ctx); err != nil {
		t.Fatalf("loser release: %v", err)
	}
	if ok, _ := loser.Acquire(ctx); ok {
		t.Fatal("lock must still be held after foreign release attempt")
	}
}
