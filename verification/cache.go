// Package verification issues and redeems short-lived one-time codes
// proving control of an email address.
//
// Codes live in a primary durable cache (redis) and are unconditionally
// mirrored into an in-process fallback, so a code issued moments before a
// redis outage stays redeemable. The policy is fail-fast/fail-open: one
// observed primary failure downgrades the store to fallback-first until
// the process restarts.
package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix matches the layout used by the redis tier for code entries.
const keyPrefix = "email:verify:"

// CodeCache is the capability a primary code tier must provide.
type CodeCache interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithTTL stores value under key for the given lifetime.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// RedisCache implements CodeCache on a redis client.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps client as a CodeCache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements CodeCache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// SetWithTTL implements CodeCache.
func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements CodeCache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// fallbackEntry holds a mirrored code with its absolute expiry. Entries
// are not auto-expired; the store checks expiresAt on every read and a
// periodic sweep purges leftovers.
type fallbackEntry struct {
	code      string
	expiresAt time.Time
}

// fallbackCache is the in-process mirror tier. Insert, remove, and sweep
// run concurrently with request-driven access.
type fallbackCache struct {
	mu      sync.Mutex
	entries map[string]fallbackEntry
}

func newFallbackCache() *fallbackCache {
	return &fallbackCache{entries: make(map[string]fallbackEntry)}
}

func (f *fallbackCache) set(key, code string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = fallbackEntry{code: code, expiresAt: expiresAt}
}

func (f *fallbackCache) get(key string) (fallbackEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	return e, ok
}

func (f *fallbackCache) delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

// sweep removes entries whose expiry has passed and reports how many
// were purged.
func (f *fallbackCache) sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	purged := 0
	for key, e := range f.entries {
		if now.After(e.expiresAt) {
			delete(f.entries, key)
			purged++
		}
	}
	return purged
}

func (f *fallbackCache) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
