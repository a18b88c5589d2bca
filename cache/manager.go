package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// NewStore builds the configured backend and wraps it with operation metrics when
// a metrics manager is supplied.
func NewStore(ctx context.Context, config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	var (
		store types.CacheStore
		err   error
	)

	switch config.Type {
	case "file", "":
		store, err = NewFileStore(config.Dir, config.TTL(), logger)
	case "redis":
		if config.Redis == nil {
			return nil, types.Errorf(types.ErrCacheType, "redis backend needs redis settings")
		}
		store, err = NewRedisStore(ctx, config.Redis, config.TTL(), logger)
	case "memory":
		store = NewMemoryStore(config.TTL(), config.MaxEntries, logger)
	default:
		return nil, types.Errorf(types.ErrCacheType, "type: %s", config.Type)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("Cache store initialized",
		zap.String("type", config.Type),
		zap.Duration("ttl", config.TTL()))

	if metrics == nil {
		return store, nil
	}

	return &instrumentedStore{store: store, metrics: metrics}, nil
}

type instrumentedStore struct {
	store   types.CacheStore
	metrics types.MetricsManager
}

func (s *instrumentedStore) Get(ctx context.Context, key string, target interface{}) bool {
	start := time.Now()
	ok := s.store.Get(ctx, key, target)

	result := "miss"
	if ok {
		result = "hit"
	}
	s.record("get", result, start)

	return ok
}

func (s *instrumentedStore) Set(ctx context.Context, key string, value interface{}) error {
	start := time.Now()
	err := s.store.Set(ctx, key, value)
	s.record("set", resultOf(err), start)
	return err
}

func (s *instrumentedStore) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := s.store.Invalidate(ctx, key)
	s.record("invalidate", resultOf(err), start)
	return err
}

func (s *instrumentedStore) Clear(ctx context.Context) {
	start := time.Now()
	s.store.Clear(ctx)
	s.record("clear", "success", start)
}

// Sweep forwards to the wrapped store when it supports sweeping.
func (s *instrumentedStore) Sweep(ctx context.Context) (int, error) {
	sweeper, ok := s.store.(types.CacheSweeper)
	if !ok {
		return 0, nil
	}

	start := time.Now()
	n, err := sweeper.Sweep(ctx)
	s.record("sweep", resultOf(err), start)
	return n, err
}

// Unwrap exposes the backend for health checks.
func (s *instrumentedStore) Unwrap() types.CacheStore {
	return s.store
}

func (s *instrumentedStore) record(operation, result string, start time.Time) {
	labels := map[string]string{"operation": operation, "result": result}
	s.metrics.Counter("cache_operations_total", labels).Inc()
	s.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}, labels).ObserveDuration(start)
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
