package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event ActivityEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client, logger *slog.Logger) Publisher {
	return &RedisPublisher{client: client, logger: logger.With(slog.String("component", "publisher"))}
}

// Publish adds an event to the stream with XADD and an auto-generated ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event ActivityEvent) (string, error) {
	start := time.Now()

	values, err := event.ToMap()
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Error("publish failed",
			slog.String("stream", stream), slog.String("type", event.Type), slog.Any("error", err))
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.logger.Debug("published",
		slog.String("stream", stream),
		slog.String("type", event.Type),
		slog.String("msg_id", messageID),
		slog.Duration("duration", time.Since(start)),
	)
	return messageID, nil
}

// PublishAfterCommit publishes on the activity stream. Failures are logged,
// never returned. A nil Publisher is a no-op.
func PublishAfterCommit(ctx context.Context, p Publisher, logger *slog.Logger, event ActivityEvent) {
	if p == nil {
		return
	}
	if _, err := p.Publish(ctx, StreamActivity, event); err != nil {
		logger.Warn("failed to publish activity event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
