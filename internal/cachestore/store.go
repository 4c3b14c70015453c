// Package cachestore caches short string values (JSON documents, counters) in
// front of authoritative storage, either in process memory or in Redis.
package cachestore

import (
	"context"
	"time"
)

const (
	DefaultTTL      = 30 * time.Second
	DefaultCapacity = 10_000
)

// Store is a namespaced key/value cache with a fixed TTL.
type Store interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Purge(ctx context.Context, namespace, key string) error
}

// Config selects and sizes the cache backend.
type Config struct {
	RedisURL string
	TTL      time.Duration
	Capacity int
}

// New returns a Redis-backed store when RedisURL is set, otherwise an in-memory LRU.
func New(ctx context.Context, cfg Config) (Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if cfg.RedisURL == "" {
		return NewMemoryStore(capacity, ttl), nil
	}
	return NewRedisStore(ctx, cfg.RedisURL, capacity, ttl)
}

func compositeKey(namespace, key string) string {
	return namespace + "/" + key
}
