package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const answerKeyPrefix = "answer:"

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

func tenantKey(tenant, key string) string {
	return answerKeyPrefix + tenant + ":" + key
}

// GetAnswer retrieves a cached answer by key
func (c *RedisCache) GetAnswer(ctx context.Context, tenant, key string) (*Result, error) {
	data, err := c.client.Get(ctx, tenantKey(tenant, key)).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAnswer stores an answer with TTL
func (c *RedisCache) SetAnswer(ctx context.Context, tenant, key string, result *Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tenantKey(tenant, key), data, ttl).Err()
}

// InvalidateTenant removes all cached answers for a tenant. Keys carry
// the tenant in their prefix, so a SCAN over that prefix never touches
// another tenant's entries.
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenant string) error {
	iter := c.client.Scan(ctx, 0, answerKeyPrefix+tenant+":*", 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
	}

	if err := iter.Err(); err != nil {
		return err
	}

	if count > 0 {
		_, err := pipe.Exec(ctx)
		return err
	}

	return nil
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
