// Package cache holds the short-lived shared state of the gate: ingest rate
// limits and consumed access keys. Redis backs both in production; the
// memory variants serve single-process deployments and tests.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// RateLimiter allows or denies an event for key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

// Redeemer marks a token id as used exactly once.
type Redeemer interface {
	// Redeem returns true the first time id is seen within ttl.
	Redeem(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter returns a Redis sliding-window limiter: at most limit events
// per key within window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{client: client, limit: limit, window: window}
}

func (r *slidingWindowLimiter) Limit() int { return r.limit }

func (r *slidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	rkey := "hive:ratelimit:" + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	countCmd := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline for %q: %w", key, err)
	}
	return countCmd.Val() <= int64(r.limit), nil
}

type redisRedeemer struct {
	client *redis.Client
}

func NewRedeemer(client *redis.Client) Redeemer {
	return &redisRedeemer{client: client}
}

func (r *redisRedeemer) Redeem(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "hive:accesskey:"+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redeem access key %s: %w", id, err)
	}
	return ok, nil
}
