package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The status cache sits on the poll path, so a slow Redis has to fail
// quickly and let the poll fall through to Postgres.
const (
	dialTimeout = 2 * time.Second
	opTimeout   = 500 * time.Millisecond
	pingTimeout = 3 * time.Second
)

// Client is the process-wide Redis connection, shared by the status cache,
// the rate limiter and the request event stream.
type Client struct {
	*redis.Client
}

// NewClient parses a redis:// URL and applies the short timeouts above
// unless the URL sets its own (dial_timeout, read_timeout, write_timeout).
// Blocking stream reads extend the read timeout by their block duration.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = opTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = opTimeout
	}
	return &Client{Client: redis.NewClient(opts)}, nil
}

// Ping fails fast on startup when Redis is unreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
