// Package ratelimit provides a redis-backed fixed-window counter used
// to throttle login attempts per client. Password hashing is expensive
// on purpose; the limiter keeps an attacker from turning that cost
// against the server.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// New returns a limiter allowing limit events per window per key.
func New(addr, password string, db int, limit int, window time.Duration) *Limiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Limiter{client: rdb, limit: int64(limit), window: window}
}

// Allow records one event for the key and reports whether it is still
// within the window's budget. The counter lives in redis so the limit
// holds across replicas.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := fmt.Sprintf("ratelimit:%s", key)

	n, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// First event of the window starts the clock.
		if err := l.client.Expire(ctx, bucket, l.window).Err(); err != nil {
			return false, err
		}
	}

	return n <= l.limit, nil
}

func (l *Limiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
