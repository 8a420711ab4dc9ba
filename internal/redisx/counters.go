package redisx

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// Counters is the fast counter store backed by Redis.
type Counters struct{ RDB redis.Cmdable }

func (c Counters) IncrBy(ctx context.Context, key string, delta int64) error {
	return c.RDB.IncrBy(ctx, key, delta).Err()
}

// GetDel reads and removes key in one command (Redis >= 6.2).
func (c Counters) GetDel(ctx context.Context, key string) (int64, bool, error) {
	v, err := c.RDB.GetDel(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Scan calls fn for every key matching pattern. Keys may repeat across
// SCAN pages; callers must tolerate that.
func (c Counters) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	it := c.RDB.Scan(ctx, 0, pattern, scanCount).Iterator()
	for it.Next(ctx) {
		if err := fn(it.Val()); err != nil {
			return err
		}
	}
	return it.Err()
}
