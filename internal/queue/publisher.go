package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the stream and returns the Redis message ID.
	Publish(ctx context.Context, stream string, event RequestEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
	log    *zap.SugaredLogger
}

// NewPublisher creates a Publisher backed by Redis Streams. maxLen caps the
// stream approximately; zero leaves it unbounded.
func NewPublisher(client *redis.Client, maxLen int64, log *zap.SugaredLogger) Publisher {
	return &RedisPublisher{client: client, maxLen: maxLen, log: log.Named("publisher")}
}

// Publish adds an event to the stream using XADD with an auto-generated ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event RequestEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		p.log.Errorw("Publish FAILED", "stream", stream, "type", event.Type, "err", err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	messageID, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.log.Errorw("Publish FAILED", "stream", stream, "type", event.Type, "err", err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.log.Infow("Publish OK",
		"stream", stream,
		"type", event.Type,
		"request", event.RequestID,
		"msgID", messageID,
		"duration", time.Since(startTime))
	return messageID, nil
}
