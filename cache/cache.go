// Package cache holds published tenant registries.
//
// Local keeps values in process. Cluster wraps a Local and propagates
// invalidations to peer nodes through a NATS KV bucket, so a mutation on one
// node evicts the stale registry everywhere and peers rebuild on next access.
package cache

import (
	"context"
	"log/slog"

	gocache "github.com/patrickmn/go-cache"
)

// Cache stores values by key. Implementations are safe for concurrent use.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	Flush()
}

// Broadcaster is implemented by caches shared across processes.
type Broadcaster interface {
	// Invalidate evicts key on every peer.
	Invalidate(ctx context.Context, key string) error
	// InvalidateAll evicts every key on every peer.
	InvalidateAll(ctx context.Context) error
}

// Notifier is implemented by caches whose entries can be evicted by other
// processes. fn runs before the eviction with the evicted key, or with all
// set when every key is evicted.
type Notifier interface {
	OnInvalidate(fn func(key string, all bool))
}

// Local is an in-process cache backed by go-cache. Entries never expire.
type Local[V any] struct {
	name   string
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewLocal creates an empty local cache. name is used in log messages.
func NewLocal[V any](name string, logger *slog.Logger) *Local[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local[V]{
		name:   name,
		cache:  gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

// Get returns the value stored under key.
func (c *Local[V]) Get(key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		c.logger.Error("Wrong value type in cache", "cache", c.name, "key", key)
		return zero, false
	}
	return v, true
}

// Set stores value under key.
func (c *Local[V]) Set(key string, value V) {
	c.cache.Set(key, value, gocache.NoExpiration)
}

// Delete removes key.
func (c *Local[V]) Delete(key string) {
	c.cache.Delete(key)
}

// Flush removes every entry.
func (c *Local[V]) Flush() {
	c.cache.Flush()
}

// Len returns the number of entries.
func (c *Local[V]) Len() int {
	return c.cache.ItemCount()
}
