package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"shejire/config"
)

// Cache is a key/value store with per-entry TTL. The license service depends
// on this interface instead of ambient global state so invalidation is an
// explicit call.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// NewCache picks the Redis-backed cache when Redis is configured, otherwise
// an in-process one.
func NewCache(cfg config.RedisConfig) Cache {
	if cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache()
}

// MemoryCache is a process-local Cache with lazy expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// RedisCache is a Redis-backed Cache shared between instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisCache) Get(key string) ([]byte, bool) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(key string, value []byte, ttl time.Duration) {
	r.client.Set(context.Background(), key, value, ttl)
}

func (r *RedisCache) Delete(key string) {
	r.client.Del(context.Background(), key)
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
