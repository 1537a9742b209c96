// 文件路径: internal/cache/store.go
// 模块说明: 基于 go-cache 的进程内计数存储，目前只用于限流计数，不缓存订阅内容。
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a namespaced TTL store for small counters.
type Store interface {
	// Increment adds delta to the counter at key and returns the new value.
	// A missing or expired counter starts at delta and lives for ttl; an
	// existing one keeps its original expiry.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// TTL reports how long the entry at key has left.
	TTL(ctx context.Context, key string) (time.Duration, bool)
	Delete(ctx context.Context, key string)
	// Namespace returns a view whose keys are prefixed with prefix.
	Namespace(prefix string) Store
	// Len counts live and not yet evicted entries across all namespaces.
	Len() int
}

// Options 配置内存缓存行为。
type Options struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	Prefix          string
}

// NewStore 创建基于 go-cache 的缓存实现，并支持命名空间。
func NewStore(opts Options) Store {
	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultTTL
	}
	return &goCacheStore{
		backend:    gocache.New(defaultTTL, cleanup),
		defaultTTL: defaultTTL,
		prefix:     normalizePrefix(opts.Prefix),
	}
}

type goCacheStore struct {
	backend    *gocache.Cache
	defaultTTL time.Duration
	prefix     string
}

func (s *goCacheStore) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, fmt.Errorf("cache: empty key")
	}
	k := s.prefixed(key)
	ttl = s.normalizeTTL(ttl)

	// Add only succeeds for a missing or expired key. If another caller wins
	// the race, or the entry expires between the two calls, go around again.
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.backend.Add(k, delta, ttl); err == nil {
			return delta, nil
		}
		n, err := s.backend.IncrementInt64(k, delta)
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("cache: increment %q did not settle", k)
}

func (s *goCacheStore) TTL(_ context.Context, key string) (time.Duration, bool) {
	_, exp, ok := s.backend.GetWithExpiration(s.prefixed(key))
	if !ok || exp.IsZero() {
		return 0, false
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func (s *goCacheStore) Delete(_ context.Context, key string) {
	s.backend.Delete(s.prefixed(key))
}

func (s *goCacheStore) Namespace(prefix string) Store {
	return &goCacheStore{
		backend:    s.backend,
		defaultTTL: s.defaultTTL,
		prefix:     joinPrefixes(s.prefix, prefix),
	}
}

func (s *goCacheStore) Len() int {
	return s.backend.ItemCount()
}

func (s *goCacheStore) prefixed(key string) string {
	key = strings.TrimSpace(key)
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *goCacheStore) normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	return ttl
}

func normalizePrefix(prefix string) string {
	return strings.Trim(prefix, ": ")
}

func joinPrefixes(parts ...string) string {
	var normalized []string
	for _, part := range parts {
		if trimmed := normalizePrefix(part); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return strings.Join(normalized, ":")
}
