package scraper

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// TokenStore holds the process-wide security token in the cache. The token is
// not tied to a line.
type TokenStore struct {
	cache types.CacheStore
}

func NewTokenStore(cache types.CacheStore) *TokenStore {
	return &TokenStore{cache: cache}
}

func (s *TokenStore) Get(ctx context.Context) (string, bool) {
	var token string
	if !s.cache.Get(ctx, types.CacheKeySecurityCode, &token) {
		return "", false
	}
	return token, token != ""
}

// Publish overwrites the cached token regardless of its previous value.
func (s *TokenStore) Publish(ctx context.Context, token string) error {
	return s.cache.Set(ctx, types.CacheKeySecurityCode, token)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, bool)
	Refresh(ctx context.Context, lineCode string) (string, error)
}

// TokenManager never fetches eagerly: a token only appears as a byproduct of
// a stop scrape. Refresh forces exactly one such scrape.
type TokenManager struct {
	store  *TokenStore
	cache  types.CacheStore
	stops  StopLoader
	logger types.Logger
}

func NewTokenManager(store *TokenStore, cache types.CacheStore, stops StopLoader, logger types.Logger) *TokenManager {
	return &TokenManager{
		store:  store,
		cache:  cache,
		stops:  stops,
		logger: logger,
	}
}

func (m *TokenManager) Token(ctx context.Context) (string, bool) {
	return m.store.Get(ctx)
}

// Refresh drops the cached stops of lineCode, re-scrapes them and re-reads the
// token. A second absence is reported as ErrTokenUnavailable.
func (m *TokenManager) Refresh(ctx context.Context, lineCode string) (string, error) {
	m.logger.Info("Refreshing security token", zap.String("line", lineCode))

	if err := m.cache.Invalidate(ctx, types.LineStopsKey(lineCode)); err != nil {
		return "", err
	}

	if _, err := m.stops.GetLineStops(ctx, lineCode); err != nil {
		return "", types.WrapError(err, "token refresh scrape failed")
	}

	token, ok := m.store.Get(ctx)
	if !ok {
		m.logger.Error("Security token still missing after refresh", zap.String("line", lineCode))
		return "", types.Errorf(types.ErrTokenUnavailable, "line %s page carried no token", lineCode)
	}

	return token, nil
}
