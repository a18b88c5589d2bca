package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
)

func newFileStore(t *testing.T, ttl time.Duration) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "cache"), ttl, logger.NewNop())
	require.NoError(t, err)
	return store
}

func age(t *testing.T, store *FileStore, key string, by time.Duration) {
	t.Helper()
	old := time.Now().Add(-by)
	require.NoError(t, os.Chtimes(store.path(key), old, old))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	stops := []types.Stop{
		{Code: "101", Name: "Boulevard", InternalID: "2"},
		{Code: "102", Name: "Easo", InternalID: "7"},
	}
	require.NoError(t, store.Set(ctx, types.LineStopsKey("05"), stops))

	var got []types.Stop
	require.True(t, store.Get(ctx, types.LineStopsKey("05"), &got))
	assert.Equal(t, stops, got)

	require.NoError(t, store.Set(ctx, types.CacheKeySecurityCode, "abc123"))
	var token string
	require.True(t, store.Get(ctx, types.CacheKeySecurityCode, &token))
	assert.Equal(t, "abc123", token)

	_, err := os.Stat(filepath.Join(store.Dir(), "line_stops_05.json"))
	assert.NoError(t, err)
}

func TestFileStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	require.NoError(t, store.Set(ctx, "k", "first"))
	require.NoError(t, store.Set(ctx, "k", "second"))

	var got string
	require.True(t, store.Get(ctx, "k", &got))
	assert.Equal(t, "second", got)
}

func TestFileStoreExpiresByModTime(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, types.CacheKeyBusLines, []string{"05"}))

	var got []string
	require.True(t, store.Get(ctx, types.CacheKeyBusLines, &got))

	age(t, store, types.CacheKeyBusLines, time.Minute+time.Second)
	assert.False(t, store.Get(ctx, types.CacheKeyBusLines, &got))
}

func TestFileStoreExpiresAtExactTTL(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Minute)
	require.NoError(t, store.Set(ctx, "k", 1))

	info, err := os.Stat(store.path("k"))
	require.NoError(t, err)

	store.now = func() time.Time { return info.ModTime().Add(time.Minute - time.Millisecond) }
	var v int
	assert.True(t, store.Get(ctx, "k", &v))

	store.now = func() time.Time { return info.ModTime().Add(time.Minute) }
	assert.False(t, store.Get(ctx, "k", &v))
}

func TestFileStoreCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	require.NoError(t, os.WriteFile(store.path("broken"), []byte("{not json"), 0o644))

	var v map[string]string
	assert.False(t, store.Get(ctx, "broken", &v))
	assert.False(t, store.Get(ctx, "never-set", &v))
}

func TestFileStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Invalidate(ctx, "k"))

	var v string
	assert.False(t, store.Get(ctx, "k", &v))
	assert.NoError(t, store.Invalidate(ctx, "k"))
}

func TestFileStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, key, key))
	}

	store.Clear(ctx)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.RemoveAll(store.Dir()))
	assert.NotPanics(t, func() { store.Clear(ctx) })
}

func TestFileStoreSetFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	require.NoError(t, os.RemoveAll(store.Dir()))
	require.NoError(t, os.WriteFile(store.Dir(), []byte("not a dir"), 0o644))

	err := store.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, types.ErrCacheWrite)
}

func TestNewFileStoreUnusableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewFileStore(filepath.Join(blocker, "cache"), time.Hour, logger.NewNop())
	assert.ErrorIs(t, err, types.ErrCacheWrite)
}

func TestFileStoreConcurrentFirstUse(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "cache")

	var wg sync.WaitGroup
	errs := make(chan error, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := NewFileStore(dir, time.Hour, logger.NewNop())
			if err != nil {
				errs <- err
				return
			}
			errs <- store.Set(ctx, "shared", i)
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestFileStoreKeysStayInsideDir(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Hour)

	require.NoError(t, store.Set(ctx, types.LineStopsKey("../escape"), "x"))

	_, err := os.Stat(filepath.Join(filepath.Dir(store.Dir()), "escape.json"))
	assert.True(t, os.IsNotExist(err))

	var v string
	assert.True(t, store.Get(ctx, types.LineStopsKey("../escape"), &v))
}

func TestFileStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, "fresh", 1))
	require.NoError(t, store.Set(ctx, "stale", 2))
	age(t, store, "stale", time.Hour)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var v int
	assert.True(t, store.Get(ctx, "fresh", &v))
	_, err = os.Stat(store.path("stale"))
	assert.True(t, os.IsNotExist(err))
}
