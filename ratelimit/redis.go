package ratelimit

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCounter is a CounterStore over a Redis sorted set per key, scored by
// request time in milliseconds. The pipeline keeps evict-count-record
// round-trip-free so concurrent admission stays cheap.
type RedisCounter struct {
	rdb goredis.UniversalClient
}

// NewRedisCounter creates a counter store over the given Redis client.
func NewRedisCounter(rdb goredis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Record implements CounterStore.
func (c *RedisCounter) Record(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	windowStart := now.Add(-window).UnixMilli()

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member,
	})
	pipe.Expire(ctx, key, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// Retract implements CounterStore.
func (c *RedisCounter) Retract(ctx context.Context, key, member string) error {
	return c.rdb.ZRem(ctx, key, member).Err()
}
