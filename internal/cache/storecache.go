package cache

import (
	"context"
	"time"
)

// Storage is the persistence surface used by the store-backed cache.
// *store implementations satisfy it via their response_cache table.
type Storage interface {
	GetCachedResponse(ctx context.Context, key string) (*Entry, error)
	PutCachedResponse(ctx context.Context, entry *Entry, ttl time.Duration) error
}

// StoreBacked persists cached responses through the primary store so
// they survive restarts without a separate Redis deployment.
type StoreBacked struct {
	storage Storage
}

// NewStoreBacked creates a store-backed cache.
func NewStoreBacked(s Storage) *StoreBacked {
	return &StoreBacked{storage: s}
}

func (c *StoreBacked) Get(ctx context.Context, key string) (*Entry, bool, error) {
	entry, err := c.storage.GetCachedResponse(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry, true, nil
}

func (c *StoreBacked) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	e := *entry
	e.Key = key
	return c.storage.PutCachedResponse(ctx, &e, ttl)
}

func (c *StoreBacked) Close() error { return nil }
