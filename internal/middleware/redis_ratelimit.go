package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounter is a fixed-window Counter backed by INCR and EXPIRE.
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := c.now().UnixNano() / int64(window)
	redisKey := fmt.Sprintf("%s:%s:%d", c.prefix, key, bucket)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("rate limit counter unavailable", "error", err)
		return true, fmt.Errorf("rate limit counter: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}
