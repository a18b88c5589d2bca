package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

// RedisStore keeps the same contract as FileStore but lets redis expire
// entries with PX, so no sweep is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger types.Logger
}

func NewRedisStore(ctx context.Context, config *types.RedisConfig, ttl time.Duration, logger types.Logger) (*RedisStore, error) {
	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return &RedisStore{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string, target interface{}) bool {
	if key == "" {
		return false
	}

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Warn("Redis cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := utils.UnmarshalInto(data, target); err != nil {
		r.logger.Warn("Cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

func (r *RedisStore) Set(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return types.Errorf(types.ErrCacheWrite, "encode %s: %v", key, err)
	}

	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return types.Errorf(types.ErrCacheWrite, "set %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return types.WrapError(err, "failed to invalidate cache entry")
	}

	return nil
}

func (r *RedisStore) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Warn("Failed to remove cache entry", zap.String("key", iter.Val()), zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		r.logger.Warn("Cache clear interrupted", zap.Error(err))
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
