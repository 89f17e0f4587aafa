// Package redisstore backs store.KV with Redis so admin sessions survive a
// restart and are shared between server instances.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // default "campusgate:"
}

func NewClient(opt Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
}

type KV struct {
	c      *redis.Client
	prefix string
}

func NewKV(c *redis.Client, prefix string) *KV {
	if prefix == "" {
		prefix = "campusgate:"
	}
	return &KV{c: c, prefix: prefix}
}

func (r *KV) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *KV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (r *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.c.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *KV) Delete(ctx context.Context, key string) error {
	if err := r.c.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr increments key and starts its ttl on the first increment, giving a
// fixed window counter.
func (r *KV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.prefix + key
	n, err := r.c.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 && ttl > 0 {
		if err := r.c.Expire(ctx, k, ttl).Err(); err != nil {
			return n, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n, nil
}
