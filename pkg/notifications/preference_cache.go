package notifications

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PreferenceCache is a read-through cache in front of a PreferenceStore.
// Implementations must be safe for concurrent use.
type PreferenceCache interface {
	Get(ctx context.Context, userID string) (*Preferences, bool)
	Set(ctx context.Context, userID string, prefs *Preferences) error
	Invalidate(ctx context.Context, userID string) error
}

// NoOpCache never stores anything.
type NoOpCache struct{}

func (NoOpCache) Get(context.Context, string) (*Preferences, bool) { return nil, false }
func (NoOpCache) Set(context.Context, string, *Preferences) error  { return nil }
func (NoOpCache) Invalidate(context.Context, string) error         { return nil }

const (
	DefaultCacheSize = 10_000
	DefaultCacheTTL  = time.Minute
)

// TTLCache is an in-process LRU cache whose entries expire after a fixed TTL.
type TTLCache struct {
	lru *expirable.LRU[string, *Preferences]
}

// NewTTLCache creates a TTLCache. Non-positive arguments fall back to
// DefaultCacheSize and DefaultCacheTTL.
func NewTTLCache(size int, ttl time.Duration) *TTLCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache{lru: expirable.NewLRU[string, *Preferences](size, nil, ttl)}
}

func (c *TTLCache) Get(_ context.Context, userID string) (*Preferences, bool) {
	p, ok := c.lru.Get(userID)
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (c *TTLCache) Set(_ context.Context, userID string, prefs *Preferences) error {
	c.lru.Add(userID, prefs.Clone())
	return nil
}

func (c *TTLCache) Invalidate(_ context.Context, userID string) error {
	c.lru.Remove(userID)
	return nil
}

func (c *TTLCache) Len() int {
	return c.lru.Len()
}
