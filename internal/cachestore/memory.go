package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps entries in a bounded, expiring LRU owned by this process.
type MemoryStore struct {
	entries *expirable.LRU[string, string]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore allocates an LRU holding at most capacity entries for ttl each.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	value, ok := s.entries.Get(compositeKey(namespace, key))
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, namespace, key, value string) error {
	s.entries.Add(compositeKey(namespace, key), value)
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, namespace, key string) error {
	s.entries.Remove(compositeKey(namespace, key))
	return nil
}
