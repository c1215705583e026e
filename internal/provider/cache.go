package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/entityconfig/internal/getconfig"
	"github.com/pitabwire/entityconfig/model"
)

// Entry is the cached form of a resolved config. Present lists the config
// keys the resolution produced, so an entry set to nil survives a round trip.
type Entry struct {
	Definition *model.EntityConfig  `json:"definition,omitempty"`
	Filters    *model.FiltersConfig `json:"filters,omitempty"`
	Sorters    *model.SortersConfig `json:"sorters,omitempty"`
	Present    []string             `json:"present,omitempty"`
}

func entryFromContext(c *getconfig.Context) *Entry {
	e := &Entry{}
	if c.HasResult() {
		e.Definition = c.Result()
		e.Present = append(e.Present, model.ConfigDefinition)
	}
	if c.HasFilters() {
		e.Filters = c.Filters()
		e.Present = append(e.Present, model.ConfigFilters)
	}
	if c.HasSorters() {
		e.Sorters = c.Sorters()
		e.Present = append(e.Present, model.ConfigSorters)
	}
	return e
}

// Config builds the result map. Each call returns a new map.
func (e *Entry) Config() model.Config {
	cfg := make(model.Config, len(e.Present))
	for _, key := range e.Present {
		switch key {
		case model.ConfigDefinition:
			cfg[key] = e.Definition
		case model.ConfigFilters:
			cfg[key] = e.Filters
		case model.ConfigSorters:
			cfg[key] = e.Sorters
		}
	}
	return cfg
}

// Empty reports whether the resolution produced nothing.
func (e *Entry) Empty() bool { return len(e.Present) == 0 }

// Has reports whether key was produced.
func (e *Entry) Has(key string) bool { return slices.Contains(e.Present, key) }

// Cache is the storage policy of a Provider.
type Cache interface {
	// Get returns the entry stored under key.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores e under key.
	Set(ctx context.Context, key string, e *Entry) error
	// Reset drops every entry.
	Reset(ctx context.Context) error
	// Name identifies the policy in logs and metrics.
	Name() string
}

// --- MemoryCache ---

// MemoryCache keeps every entry for the lifetime of the cache. Nothing is
// evicted until Reset.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*Entry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e *Entry) error {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Reset(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Name() string { return "memory" }

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// --- LRUCache ---

// LRUCache holds at most a fixed number of entries, evicting the least
// recently used one.
type LRUCache struct {
	entries *lru.Cache[string, *Entry]
}

// NewLRUCache creates an LRUCache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("lru cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	e, ok := c.entries.Get(key)
	return e, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key string, e *Entry) error {
	c.entries.Add(key, e)
	return nil
}

func (c *LRUCache) Reset(context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *LRUCache) Name() string { return "lru" }

// Len returns the number of entries.
func (c *LRUCache) Len() int { return c.entries.Len() }

// --- RedisCache ---

// RedisCache shares entries between instances through Redis. Entries are
// stored as JSON under prefix+key. A zero TTL keeps entries until Reset.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal config entry %q: %w", key, err)
	}
	return &e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal config entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Reset deletes every key under the cache prefix.
func (c *RedisCache) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, scanPattern(c.prefix), 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan %q: %w", c.prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *RedisCache) Name() string { return "redis" }

// HealthCheck pings Redis. Used by the readiness check.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// scanPattern matches every key starting with prefix, escaping the glob
// metacharacters SCAN would otherwise interpret.
func scanPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
