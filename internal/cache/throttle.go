package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottlePrefix namespaces the fixed-window counters.
const ThrottlePrefix = "throttle:"

// RequestThrottle limits how often an action may happen per key.
type RequestThrottle interface {
	// Allow counts one attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisThrottle is a fixed-window counter: INCR, with EXPIRE set on the
// first hit of each window.
type RedisThrottle struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRequestThrottle(client *redis.Client, limit int, window time.Duration) RequestThrottle {
	return &RedisThrottle{client: client, limit: int64(limit), window: window}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := ThrottlePrefix + key

	count, err := t.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("incr throttle: %w", err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, fullKey, t.window).Err(); err != nil {
			return false, fmt.Errorf("expire throttle: %w", err)
		}
	}

	return count <= t.limit, nil
}
