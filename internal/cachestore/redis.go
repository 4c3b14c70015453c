package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares cache entries between processes through Redis, fronted by
// a small local TinyLFU.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and verifies the connection with PING.
func NewRedisStore(ctx context.Context, redisURL string, localCapacity int, ttl time.Duration) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cachestore: invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cachestore: redis ping failed: %w", err)
	}
	return &RedisStore{
		cache: cache.New(&cache.Options{
			Redis:      client,
			LocalCache: cache.NewTinyLFU(localCapacity, ttl),
		}),
		ttl: ttl,
	}, nil
}

func redisKey(namespace, key string) string {
	return "safeyak/" + compositeKey(namespace, key)
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := s.cache.Get(ctx, redisKey(namespace, key), &value)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	return s.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisKey(namespace, key),
		Value: value,
		TTL:   s.ttl,
	})
}

func (s *RedisStore) Purge(ctx context.Context, namespace, key string) error {
	err := s.cache.Delete(ctx, redisKey(namespace, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
