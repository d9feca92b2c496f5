package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(3, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "u1")
		if err != nil || !d.Allowed {
			t.Fatalf("event %d: decision=%+v err=%v", i, d, err)
		}
	}

	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("4th event should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 20*time.Second {
		t.Fatalf("retry after=%v want (0, 20s]", d.RetryAfter)
	}

	if d, _ := l.Allow(ctx, "u2"); !d.Allowed {
		t.Fatalf("other keys must not be throttled")
	}

	now = now.Add(20 * time.Second)
	if d, _ := l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatalf("token should refill after one interval")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AURA_SEND_RATE", "5")
	t.Setenv("AURA_SEND_WINDOW", "10s")
	t.Setenv("AURA_REDIS_URL", "redis://localhost:6379/0")

	cfg := LoadConfigFromEnv()
	if cfg.Limit != 5 || cfg.Window != 10*time.Second || cfg.RedisURL == "" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestRedisLimiter_Integration(t *testing.T) {
	url := os.Getenv("AURA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("AURA_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	key := "it-" + time.Now().Format("150405.000000000")
	l, err := NewRedisLimiter(rdb, "aura:test:rl", 2, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Del(ctx, "aura:test:rl:"+key).Err() })

	for i := 0; i < 2; i++ {
		if d, err := l.Allow(ctx, key); err != nil || !d.Allowed {
			t.Fatalf("event %d: decision=%+v err=%v", i, d, err)
		}
	}
	d, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected denial with retry-after, got %+v", d)
	}
}
