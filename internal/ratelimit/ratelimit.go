package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces limiter counters in Redis.
const KeyPrefix = "ratelimit:"

// Rule is a fixed-window quota.
type Rule struct {
	Window      time.Duration
	MaxRequests int64
}

// Quotas used by the notification gateway.
var (
	APIModerate = Rule{Window: time.Minute, MaxRequests: 30}
	APIRelaxed  = Rule{Window: time.Minute, MaxRequests: 100}
)

// Result describes one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetIn   time.Duration
}

// Limiter decides whether an identifier may perform an action now.
type Limiter interface {
	Allow(ctx context.Context, action, identifier string, rule Rule) (Result, error)
}

// RedisLimiter counts requests per window with INCR on a key that expires
// at the end of the window, so every server instance shares one quota.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func limitKey(action, identifier string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, action, identifier)
}

func (l *RedisLimiter) Allow(ctx context.Context, action, identifier string, rule Rule) (Result, error) {
	key := limitKey(action, identifier)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := incr.Val()
	resetIn := ttl.Val()
	// A key without expiry was just created by this INCR (or lost its TTL);
	// start the window now.
	if resetIn < 0 {
		if err := l.client.PExpire(ctx, key, rule.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit expire: %w", err)
		}
		resetIn = rule.Window
	}

	remaining := rule.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= rule.MaxRequests,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}
