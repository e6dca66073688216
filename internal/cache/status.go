package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"helparo/internal/model"
)

const (
	// StatusCachePrefix is the key prefix for cached poll snapshots
	StatusCachePrefix = "request:status:"

	// DefaultStatusTTL stays below the client poll interval so a missed
	// invalidation heals before the next poll.
	DefaultStatusTTL = 3 * time.Second
)

// StatusCache holds the poll projection of recently polled requests.
type StatusCache interface {
	// Get returns (snapshot, found, error). found=false on a miss.
	Get(ctx context.Context, requestID string) (*model.StatusSnapshot, bool, error)

	// Set stores a snapshot with the cache TTL.
	Set(ctx context.Context, requestID string, snap model.StatusSnapshot) error

	// Invalidate drops the entry. Called after every successful transition.
	Invalidate(ctx context.Context, requestID string) error
}

// RedisStatusCache implements StatusCache with plain string keys holding JSON.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(requestID string) string {
	return StatusCachePrefix + requestID
}

func (c *RedisStatusCache) Get(ctx context.Context, requestID string) (*model.StatusSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, statusKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get status cache: %w", err)
	}

	var snap model.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode status cache: %w", err)
	}
	return &snap, true, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, requestID string, snap model.StatusSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode status cache: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(requestID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set status cache: %w", err)
	}
	return nil
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, requestID string) error {
	if err := c.client.Del(ctx, statusKey(requestID)).Err(); err != nil {
		return fmt.Errorf("invalidate status cache: %w", err)
	}
	return nil
}
