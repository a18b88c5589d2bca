package cache

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const fileExt = ".json"

// FileStore keeps one JSON file per key in a flat directory. The file
// modification time is the only expiry signal.
type FileStore struct {
	dir    string
	ttl    time.Duration
	logger types.Logger
	now    func() time.Time
	ready  atomic.Bool
}

func NewFileStore(dir string, ttl time.Duration, logger types.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, types.Errorf(types.ErrCacheWrite, "cache directory is empty")
	}

	store := &FileStore{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}

	if err := store.ensureDir(); err != nil {
		return nil, err
	}

	return store, nil
}

func (f *FileStore) Dir() string {
	return f.dir
}

// ensureDir is safe to call from concurrent first users; MkdirAll tolerates an existing directory.
func (f *FileStore) ensureDir() error {
	if f.ready.Load() {
		return nil
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return types.Errorf(types.ErrCacheWrite, "create cache dir %s: %v", f.dir, err)
	}

	f.ready.Store(true)
	return nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileExt)
}

func (f *FileStore) fresh(info fs.FileInfo) bool {
	return f.now().Sub(info.ModTime()) < f.ttl
}

func (f *FileStore) Get(_ context.Context, key string, target interface{}) bool {
	if key == "" {
		return false
	}

	path := f.path(key)

	info, err := os.Stat(path)
	if err != nil || !f.fresh(info) {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		f.logger.Debug("Cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := utils.UnmarshalInto(data, target); err != nil {
		f.logger.Warn("Cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

func (f *FileStore) Set(_ context.Context, key string, value interface{}) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if err := f.ensureDir(); err != nil {
		return err
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return types.Errorf(types.ErrCacheWrite, "encode %s: %v", key, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+url.PathEscape(key)+"-*.tmp")
	if err != nil {
		f.ready.Store(false)
		return types.Errorf(types.ErrCacheWrite, "create %s: %v", key, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return types.Errorf(types.ErrCacheWrite, "write %s: %v", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return types.Errorf(types.ErrCacheWrite, "close %s: %v", key, err)
	}

	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return types.Errorf(types.ErrCacheWrite, "commit %s: %v", key, err)
	}

	return nil
}

func (f *FileStore) Invalidate(_ context.Context, key string) error {
	if key == "" {
		return nil
	}

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.WrapError(err, "failed to invalidate cache entry")
	}

	return nil
}

func (f *FileStore) Clear(_ context.Context) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.logger.Debug("Cache clear skipped", zap.String("dir", f.dir), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, entry.Name())); err != nil {
			f.logger.Warn("Failed to remove cache entry", zap.String("file", entry.Name()), zap.Error(err))
		}
	}
}

// Sweep deletes entries that are past the TTL and returns how many were removed.
func (f *FileStore) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, types.WrapError(err, "failed to list cache directory")
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil || f.fresh(info) {
			continue
		}

		if err := os.Remove(filepath.Join(f.dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
