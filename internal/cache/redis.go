// Package cache holds the fast ephemeral key-value layer: the notification
// deduplicator and the owner activation switch, backed by Redis in managed
// deployments and by an in-process map in standalone mode.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of key-value operations the gate relies on.
type KV interface {
	// SetNX stores value under key with ttl only if key is absent.
	// It reports whether this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// HGet returns a hash field; ok is false when the key or field is missing.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	// HSet writes hash fields and (re)sets the key expiry; ttl <= 0 keeps it forever.
	HSet(ctx context.Context, key string, ttl time.Duration, fields map[string]string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisCache wraps the Redis client with the operations in KV.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// SetNX is a single atomic SET key value NX PX ttl.
func (c *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) HSet(ctx context.Context, key string, ttl time.Duration, fields map[string]string) error {
	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	return err
}

// Ping checks if Redis is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
