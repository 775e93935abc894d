package eepy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsatony/go-eepy/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(t *testing.T, source string) *CacheEntry {
	t.Helper()
	prog, err := internal.Compile("t", source, nil)
	require.NoError(t, err)
	return &CacheEntry{
		Program: prog,
		Source:  source,
		ModTime: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
	}
}

func TestCacheDrivers(t *testing.T) {
	drivers := ListCacheDrivers()
	assert.Contains(t, drivers, CacheDriverMemory)
	assert.Contains(t, drivers, CacheDriverFilesystem)
	assert.Contains(t, drivers, CacheDriverPostgres)

	_, err := OpenCache("redis", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgCacheDriverNotFound)
}

func TestRegisterCacheDriver_Panics(t *testing.T) {
	assert.Panics(t, func() { RegisterCacheDriver("nil-driver", nil) })
	assert.Panics(t, func() { RegisterCacheDriver(CacheDriverMemory, &MemoryCacheDriver{}) })
}

// exerciseCache runs the Cache contract against c.
func exerciseCache(t *testing.T, c Cache, key string) {
	t.Helper()
	ctx := context.Background()

	entry, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, entry, "miss is nil without error")

	want := testEntry(t, "<% for x in xs: %><%= x %><% end %>")
	require.NoError(t, c.Set(ctx, key, want))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Source, got.Source)
	assert.True(t, want.ModTime.Equal(got.ModTime))
	assert.Equal(t, want.Program.Instructions, got.Program.Instructions)

	replacement := testEntry(t, "other")
	require.NoError(t, c.Set(ctx, key, replacement))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "other", got.Source)

	require.NoError(t, c.Unset(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, c.Unset(ctx, key), "unset of a missing key")

	assert.Error(t, c.Set(ctx, "", want))
	assert.Error(t, c.Set(ctx, key, nil))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Get(canceled, key)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	exerciseCache(t, c, "templates/a.html")

	require.NoError(t, c.Set(context.Background(), "k", testEntry(t, "x")))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Close())
	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgCacheClosed)
}

func TestMemoryCache_EntriesAreCopied(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	entry := testEntry(t, "x")
	require.NoError(t, c.Set(ctx, "k", entry))

	entry.Source = "mutated"
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Source)
}

func TestFilesystemCache_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := NewFilesystemCache(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	exerciseCache(t, c, "/srv/templates/page.html")
}

func TestFilesystemCache_BesideTemplate(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "page.html")
	c, err := NewFilesystemCache("")
	require.NoError(t, err)

	exerciseCache(t, c, key)

	require.NoError(t, c.Set(context.Background(), key, testEntry(t, "x")))
	assert.FileExists(t, key+CacheFileSuffix)

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temporary files are left behind")
}

func TestFilesystemCache_ForeignAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFilesystemCache("")
	require.NoError(t, err)
	ctx := context.Background()

	key := filepath.Join(dir, "a.html")
	require.NoError(t, os.WriteFile(key+CacheFileSuffix, []byte(`{"key":"elsewhere","source":"x"}`), 0o644))
	entry, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, entry, "entry written for another key is a miss")

	require.NoError(t, os.WriteFile(key+CacheFileSuffix, []byte("not json"), 0o644))
	_, err = c.Get(ctx, key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgCacheReadFailed)
}

func TestFilesystemCache_Closed(t *testing.T) {
	c, err := NewFilesystemCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Error(t, c.Set(context.Background(), "k", testEntry(t, "x")))
	assert.Error(t, c.Unset(context.Background(), "k"))
}
