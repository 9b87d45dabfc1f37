package access

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/tixgate/eventchat/core"
)

type memoryEntry struct {
	isHolder  bool
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a process-local access cache.
// Entries are only evicted by expiry.
func NewMemoryCache() core.AccessCache {
	return newMemoryCache(time.Now)
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (c *memoryCache) Get(ctx context.Context, key core.AccessKey) (bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key.Key()]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		return false, false
	}
	return entry.isHolder, true
}

func (c *memoryCache) Set(ctx context.Context, key core.AccessKey, isHolder bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.Key()] = memoryEntry{
		isHolder:  isHolder,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Sweep removes expired entries
func (c *memoryCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	swept := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			swept++
		}
	}
	return swept
}

type memcacheEntry struct {
	IsHolder  bool      `json:"isHolder"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type memcacheCache struct {
	mc *memcache.Client
}

// NewMemcacheCache creates an access cache stored in memcached
func NewMemcacheCache(mc *memcache.Client) core.AccessCache {
	return &memcacheCache{mc}
}

func (c *memcacheCache) Get(ctx context.Context, key core.AccessKey) (bool, bool) {
	_, span := tracer.Start(ctx, "Access.Cache.Get")
	defer span.End()

	item, err := c.mc.Get(key.Key())
	if err != nil {
		if err != memcache.ErrCacheMiss {
			span.RecordError(err)
		}
		return false, false
	}

	var entry memcacheEntry
	err = json.Unmarshal(item.Value, &entry)
	if err != nil {
		span.RecordError(err)
		return false, false
	}

	// memcached expiry has one second resolution
	if !time.Now().Before(entry.ExpiresAt) {
		return false, false
	}

	return entry.IsHolder, true
}

func (c *memcacheCache) Set(ctx context.Context, key core.AccessKey, isHolder bool, ttl time.Duration) error {
	_, span := tracer.Start(ctx, "Access.Cache.Set")
	defer span.End()

	value, err := json.Marshal(memcacheEntry{
		IsHolder:  isHolder,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	seconds := int32(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}

	err = c.mc.Set(&memcache.Item{Key: key.Key(), Value: value, Expiration: seconds})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
