package cache

import (
	"context"
	"encoding/json"
	"time"
)

// LayeredCache is a two-level cache: a local MemoryCache (L1) in front of a
// shared backend (L2, normally Redis). Writes go through to both.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

// NewLayeredCache puts a memory cache of memSize entries in front of l2. L1
// entries live at most l1TTL so other replicas' invalidations are picked up.
func NewLayeredCache(l2 Service, memSize int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = 10 * time.Second
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(memSize)),
		l2:    l2,
		l1TTL: l1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, lc.ttl(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw json.RawMessage
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return json.Unmarshal(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeletePrefix(ctx context.Context, prefix string) error {
	_ = lc.l1.DeletePrefix(ctx, prefix)
	return lc.l2.DeletePrefix(ctx, prefix)
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) ttl(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}
