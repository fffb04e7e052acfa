package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is a size-bounded LRU cache.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxSize:    max(cfg.MaxSize, 1),
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		stop:       make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.cleanupLoop(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	item := &memoryItem{key: key, data: data, expireAt: mc.now().Add(expiration)}
	if el, ok := mc.items[key]; ok {
		el.Value = item
		mc.lru.MoveToFront(el)
		return nil
	}
	for mc.lru.Len() >= mc.maxSize {
		mc.removeElement(mc.lru.Back())
	}
	mc.items[key] = mc.lru.PushFront(item)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if mc.now().After(item.expireAt) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.lru.MoveToFront(el)
	data := item.data
	mc.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.items {
		if strings.HasPrefix(key, prefix) {
			mc.removeElement(el)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.lru.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.removeExpired()
		}
	}
}

func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for _, el := range mc.items {
		if now.After(el.Value.(*memoryItem).expireAt) {
			mc.removeElement(el)
		}
	}
}
