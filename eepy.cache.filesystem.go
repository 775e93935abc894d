package eepy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilesystemCache stores entries as JSON files.
//
// With a directory, each entry lives in <dir>/<sha256(key)>.json. Without one,
// the entry for a template is written beside it as <template>.cache.
// Files are replaced atomically through a temporary file and a rename.
type FilesystemCache struct {
	mu     sync.RWMutex
	dir    string
	closed bool
}

// filesystemRecord is the on-disk form of an entry. Key guards against files
// that were written for another template.
type filesystemRecord struct {
	Key string `json:"key"`
	CacheEntry
}

// FilesystemCacheDriver is the driver for creating FilesystemCache instances.
type FilesystemCacheDriver struct{}

func init() {
	RegisterCacheDriver(CacheDriverFilesystem, &FilesystemCacheDriver{})
}

// Open creates a FilesystemCache. The connection string is the cache directory,
// or empty to store entries beside their templates.
func (d *FilesystemCacheDriver) Open(connectionString string) (Cache, error) {
	return NewFilesystemCache(connectionString)
}

// NewFilesystemCache creates a filesystem cache rooted at dir, creating it if needed.
func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, FilesystemDirPermissions); err != nil {
			return nil, NewCacheError(ErrMsgCacheDirFailed, dir, err)
		}
	}
	return &FilesystemCache{dir: dir}, nil
}

// Get reads the entry for key.
func (c *FilesystemCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, NewCacheClosedError()
	}

	data, err := os.ReadFile(c.file(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, NewCacheError(ErrMsgCacheReadFailed, key, err)
	}

	var rec filesystemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, NewCacheError(ErrMsgCacheReadFailed, key, err)
	}
	if rec.Key != key {
		return nil, nil
	}
	return &rec.CacheEntry, nil
}

// Set writes the entry for key.
func (c *FilesystemCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
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

	data, err := json.Marshal(filesystemRecord{Key: key, CacheEntry: *entry})
	if err != nil {
		return NewCacheError(ErrMsgCacheWriteFailed, key, err)
	}
	if err := writeFileAtomic(c.file(key), data); err != nil {
		return NewCacheError(ErrMsgCacheWriteFailed, key, err)
	}
	return nil
}

// Unset deletes the entry for key.
func (c *FilesystemCache) Unset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewCacheClosedError()
	}

	if err := os.Remove(c.file(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewCacheError(ErrMsgCacheWriteFailed, key, err)
	}
	return nil
}

// Close marks the cache closed. Files are kept.
func (c *FilesystemCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

// file returns the path of the cache file for key.
func (c *FilesystemCache) file(key string) string {
	if c.dir == "" {
		return key + CacheFileSuffix
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+CacheFileExtension)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), CacheTempPattern)
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, FilesystemFilePerms); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
