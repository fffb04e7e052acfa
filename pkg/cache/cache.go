// Package cache provides a small key/value cache abstraction with in-memory,
// Redis and layered (memory in front of Redis) implementations. Values are
// stored as JSON.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// GetTyped fetches key and decodes it into a T.
func GetTyped[T any](ctx context.Context, c Service, key string) (T, error) {
	var out T
	err := c.Get(ctx, key, &out)
	return out, err
}

// Key joins parts with ':' the way every key in this module is built.
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}
