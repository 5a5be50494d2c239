package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	data    []byte
	expires time.Time
}

// LRUCache is the in-process fallback when Redis is not configured.
type LRUCache struct {
	entries *lru.Cache[string, lruEntry]
	now     func() time.Time
}

func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: c, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string, dest any) error {
	e, ok := c.entries.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	if c.now().After(e.expires) {
		c.entries.Remove(key)
		return ErrCacheMiss
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return fmt.Errorf("cache unmarshal: %w", err)
	}
	return nil
}

func (c *LRUCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	c.entries.Add(key, lruEntry{data: data, expires: c.now().Add(ttl)})
	return nil
}

func (c *LRUCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.entries.Remove(k)
	}
	return nil
}

// Purge drops every entry.
func (c *LRUCache) Purge() { c.entries.Purge() }
