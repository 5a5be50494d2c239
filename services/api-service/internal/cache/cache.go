package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss         = errors.New("cache miss")
	ErrCacheNotAvailable = errors.New("cache not available")
)

// Cache stores JSON-serializable values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
