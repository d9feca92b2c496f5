package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit events per window per key.
func NewRedisLimiter(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("ratelimit: nil redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}, nil
}

// Allow counts one event for key. INCR and PTTL run in one MULTI block; a
// counter left without an expiry is re-armed on the next call, so a failed
// PEXPIRE cannot pin a key forever.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	}); err != nil {
		return Decision{}, err
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := l.rdb.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, err
		}
		ttl = l.window
	}
	if incr.Val() <= l.limit {
		return Decision{Allowed: true}, nil
	}
	if ttl == 0 {
		ttl = l.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// NewRedisClient parses url (redis://...) and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
