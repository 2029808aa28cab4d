package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore shares counters between server instances. Each hit is INCR plus an
// EXPIRE NX in one MULTI block, so the window is opened by the first hit only.
type RedisStore struct {
	rdb    goredis.Cmdable
	prefix string
}

func NewRedisStore(rdb goredis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := r.prefix + key

	var (
		incr *goredis.IntCmd
		ttl  *goredis.DurationCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
