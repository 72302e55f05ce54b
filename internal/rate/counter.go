package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Counter is a fixed-window hit counter on a single Redis key namespace.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

func NewCounter(redisClient redis.UniversalClient, prefix string, window time.Duration) *Counter {
	return &Counter{redis: redisClient, prefix: prefix, window: window}
}

func (c *Counter) key(id string) string {
	return c.prefix + ":" + id
}

// Count returns the hits recorded in the current window.
func (c *Counter) Count(ctx context.Context, id string) (int64, error) {
	n, err := c.redis.Get(ctx, c.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Exceeded reports whether the window already holds at least max hits.
func (c *Counter) Exceeded(ctx context.Context, id string, max int) error {
	n, err := c.Count(ctx, id)
	if err != nil {
		return err
	}
	if n >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

// Hit records one hit and returns the new count.
func (c *Counter) Hit(ctx context.Context, id string) (int64, error) {
	key := c.key(id)
	n, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 1 {
		if err := c.redis.Expire(ctx, key, c.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return n, nil
}

func (c *Counter) Reset(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
