// Package cache keeps rendered page fragments for a fixed time window.
package cache

import (
	"context"
	"time"

	"example.com/postfeed/internal/logger"
	"golang.org/x/sync/singleflight"
)

var logg = logger.New()

// IndexPageKey is the fixed key of the global feed's rendered post list.
const IndexPageKey = "index_page"

// Store is a byte cache with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PageCache renders a fragment at most once per window and serves the stored
// bytes until they expire. Writes elsewhere never invalidate it.
type PageCache struct {
	store Store
	ttl   time.Duration
	group singleflight.Group
}

func NewPageCache(store Store, ttl time.Duration) *PageCache {
	return &PageCache{store: store, ttl: ttl}
}

func (c *PageCache) TTL() time.Duration { return c.ttl }

// Fetch returns the cached fragment for key or renders and stores it.
// Concurrent misses for the same key share one render. Backend failures
// are logged and the fragment is served uncached.
func (c *PageCache) Fetch(ctx context.Context, key string, render func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok, err := c.store.Get(ctx, key); err != nil {
		logg.Error("cache", "Cache read failed, rendering uncached", err, "key", key)
	} else if ok {
		logg.Debug("cache", "hit", "key", key)
		return data, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// another caller may have filled the key while we waited
		if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return data, nil
		}
		data, err := render(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			logg.Error("cache", "Cache write failed", err, "key", key)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Clear drops key out of band, so the next Fetch renders fresh output.
func (c *PageCache) Clear(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
