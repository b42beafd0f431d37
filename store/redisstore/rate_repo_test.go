package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestIncrementWindowCountsAndExpires(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewRateRepo(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := repo.IncrementWindow(ctx, "rate:test", 10*time.Second)
		if err != nil {
			t.Fatalf("increment #%d: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
		if ttl <= 0 || ttl > 10*time.Second {
			t.Fatalf("unexpected ttl %v", ttl)
		}
	}

	if v, err := mr.Get("rate:test"); err != nil || v != "3" {
		t.Fatalf("expected stored count 3, got %q (%v)", v, err)
	}

	mr.FastForward(11 * time.Second)
	if mr.Exists("rate:test") {
		t.Fatalf("window should have expired")
	}

	count, ttl, err := repo.IncrementWindow(ctx, "rate:test", 10*time.Second)
	if err != nil {
		t.Fatalf("increment after expiry: %v", err)
	}
	if count != 1 || ttl <= 0 {
		t.Fatalf("expected a fresh window, got count=%d ttl=%v", count, ttl)
	}
}

func TestIncrementWindowRejectsBadInput(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewRateRepo(client)
	if _, _, err := repo.IncrementWindow(context.Background(), "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, _, err := repo.IncrementWindow(context.Background(), "k", 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
