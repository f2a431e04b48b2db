package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ============================================================
// Redis
// ============================================================

// RedisCache делит кэш дерева между несколькими экземплярами.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache подключается по URL вида redis://host:6379/0 и
// проверяет соединение.
func NewRedisCache(ctx context.Context, url, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)

// Open выбирает бэкенд: ttl <= 0 - NullCache, redisURL - Redis,
// иначе память процесса.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (Cache, error) {
	switch {
	case ttl <= 0:
		return NewNullCache(), nil
	case redisURL != "":
		return NewRedisCache(ctx, redisURL, "floorplan:")
	}
	return NewMemoryCache(), nil
}
