package eepy

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CacheEntry is a compiled program stored by a second-level cache together with the
// source it was compiled from and the modification time of that source.
type CacheEntry struct {
	// Program is the compiled instruction program.
	Program *Program `json:"program"`

	// Source is the decoded template source.
	Source string `json:"source"`

	// ModTime is the modification time of the template file at compile time.
	// Entries whose ModTime differs from the file's are stale.
	ModTime time.Time `json:"mod_time"`
}

// Cache is a second-level store for compiled programs, keyed by resolved template
// path. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the entry for key, or nil without error on a miss.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key string, entry *CacheEntry) error

	// Unset removes the entry for key. Removing a missing key is not an error.
	Unset(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// CacheDriver is a factory for caches. Drivers register themselves during init().
type CacheDriver interface {
	// Open creates a cache from a driver-specific connection string.
	Open(connectionString string) (Cache, error)
}

// Cache driver registry
var (
	cacheDriversMu sync.RWMutex
	cacheDrivers   = make(map[string]CacheDriver)
)

// RegisterCacheDriver registers a cache driver by name.
// Panics if driver is nil or the name is taken.
func RegisterCacheDriver(name string, driver CacheDriver) {
	cacheDriversMu.Lock()
	defer cacheDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgNilCacheDriver)
	}
	if _, exists := cacheDrivers[name]; exists {
		panic(ErrMsgDriverAlreadyRegistered + ": " + name)
	}
	cacheDrivers[name] = driver
}

// OpenCache opens a cache with the named driver.
//
// Example:
//
//	cache, err := eepy.OpenCache("memory", "")
//	cache, err := eepy.OpenCache("filesystem", "/var/cache/eepy")
func OpenCache(driverName, connectionString string) (Cache, error) {
	cacheDriversMu.RLock()
	driver, ok := cacheDrivers[driverName]
	cacheDriversMu.RUnlock()

	if !ok {
		return nil, NewCacheDriverNotFoundError(driverName)
	}
	return driver.Open(connectionString)
}

// ListCacheDrivers returns the sorted names of all registered cache drivers.
func ListCacheDrivers() []string {
	cacheDriversMu.RLock()
	defer cacheDriversMu.RUnlock()

	names := make([]string, 0, len(cacheDrivers))
	for name := range cacheDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyCacheEntry(e *CacheEntry) *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}
