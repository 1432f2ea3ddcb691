package cache

import (
	"context"
	"time"
)

// scoped prefixes every key before delegating to the inner cache.
type scoped struct {
	inner  Cache
	prefix string
}

// Scoped returns a view of c whose keys are prefixed with prefix.
// Closing the view does not close c.
//
//	caching := cache.Scoped(store, "myproject:cache:")
//	index := cache.Scoped(store, "myproject:index:")
func Scoped(c Cache, prefix string) Cache {
	if c == nil {
		c = NewNullCache()
	}
	if s, ok := c.(*scoped); ok {
		return &scoped{inner: s.inner, prefix: s.prefix + prefix}
	}
	return &scoped{inner: c, prefix: prefix}
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

func (s *scoped) Close() error { return nil }
