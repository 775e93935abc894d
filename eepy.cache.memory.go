package eepy

import (
	"context"
	"sync"
)

// MemoryCache keeps entries in process. Programs are immutable and shared between
// entries and readers.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	closed  bool
}

// MemoryCacheDriver is the driver for creating MemoryCache instances.
type MemoryCacheDriver struct{}

func init() {
	RegisterCacheDriver(CacheDriverMemory, &MemoryCacheDriver{})
}

// Open creates a new MemoryCache. The connection string is ignored.
func (d *MemoryCacheDriver) Open(string) (Cache, error) {
	return NewMemoryCache(), nil
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CacheEntry)}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, NewCacheClosedError()
	}
	return copyCacheEntry(c.entries[key]), nil
}

// Set stores entry under key.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateCacheSet(key, entry); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewCacheClosedError()
	}
	c.entries[key] = copyCacheEntry(entry)
	return nil
}

// Unset removes the entry for key.
func (c *MemoryCache) Unset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewCacheClosedError()
	}
	delete(c.entries, key)
	return nil
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops all entries. Further use fails.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.entries = nil
	return nil
}

func validateCacheSet(key string, entry *CacheEntry) error {
	if key == "" {
		return NewCacheError(ErrMsgCacheEmptyKey, "", nil)
	}
	if entry == nil {
		return NewCacheError(ErrMsgCacheNilEntry, key, nil)
	}
	return nil
}
