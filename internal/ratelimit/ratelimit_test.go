package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}
	// DB 1 keeps tests away from dev data
	opts.DB = 1

	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestAllow_BlocksAfterQuota(t *testing.T) {
	client := setupTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()
	rule := Rule{Window: time.Minute, MaxRequests: 3}

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, "register_device", "user-1", rule)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != int64(3-i) {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 3-i)
		}
	}

	res, err := limiter.Allow(ctx, "register_device", "user-1", rule)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("4th request within the window should be blocked")
	}
	if res.ResetIn <= 0 || res.ResetIn > time.Minute {
		t.Errorf("ResetIn = %v, want within (0, 1m]", res.ResetIn)
	}

	// Quotas are per identifier and per action.
	if res, _ := limiter.Allow(ctx, "register_device", "user-2", rule); !res.Allowed {
		t.Error("other user should have its own quota")
	}
	if res, _ := limiter.Allow(ctx, "mark_read", "user-1", rule); !res.Allowed {
		t.Error("other action should have its own quota")
	}
}

func TestAllow_WindowResets(t *testing.T) {
	client := setupTestRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()
	rule := Rule{Window: 100 * time.Millisecond, MaxRequests: 1}

	if res, _ := limiter.Allow(ctx, "a", "u", rule); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := limiter.Allow(ctx, "a", "u", rule); res.Allowed {
		t.Fatal("second request should be blocked")
	}

	time.Sleep(200 * time.Millisecond)

	if res, _ := limiter.Allow(ctx, "a", "u", rule); !res.Allowed {
		t.Error("request after window should be allowed")
	}
}
