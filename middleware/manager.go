package middleware

import (
	"sort"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

const MaxMiddlewares = 32

type stopper interface {
	Stop() error
}

// Manager orders middlewares by ascending weight; the lightest runs outermost.
type Manager struct {
	logger      types.Logger
	metrics     types.MetricsManager
	middlewares []types.Middleware
	weights     map[int]string
	mu          sync.RWMutex
}

func NewManager(logger types.Logger, metrics types.MetricsManager) *Manager {
	return &Manager{
		logger:  logger,
		metrics: metrics,
		weights: make(map[int]string),
	}
}

// RegisterMiddlewares builds every enabled middleware from config.
func (m *Manager) RegisterMiddlewares(config *types.MiddlewaresConfig) error {
	if config == nil {
		return nil
	}

	builders := []struct {
		item  *types.MiddlewareItemConfig
		build func(*types.MiddlewareItemConfig) types.Middleware
	}{
		{config.Recovery, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewRecoveryMiddleware(c, m.logger, m.metrics)
		}},
		{config.Logging, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewLoggingMiddleware(c, m.logger, m.metrics)
		}},
		{config.Metadata, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewMetadataMiddleware(c, m.logger)
		}},
		{config.Secure, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewSecureHeadersMiddleware(c, m.logger)
		}},
		{config.RateLimit, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewRateLimitMiddleware(c, m.logger, m.metrics)
		}},
		{config.CORS, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewCORSMiddleware(c, m.logger)
		}},
		{config.Compression, func(c *types.MiddlewareItemConfig) types.Middleware {
			return NewCompressionMiddleware(c, m.logger)
		}},
	}

	for _, b := range builders {
		if b.item == nil || !b.item.Enabled {
			continue
		}

		mw := b.build(b.item)
		if err := m.Register(mw); err != nil {
			return err
		}

		m.logger.Info("Middleware registered", zap.String("name", mw.Name()), zap.Int("weight", mw.Weight()))
	}

	return nil
}

func (m *Manager) Register(mw types.Middleware) error {
	if mw == nil {
		return types.ErrMiddlewareInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.middlewares) >= MaxMiddlewares {
		return types.Errorf(types.ErrMiddlewareInvalid, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	if existing, ok := m.weights[mw.Weight()]; ok {
		return types.Errorf(types.ErrMiddlewareDuplicate, "weight %d used by '%s' and '%s'", mw.Weight(), existing, mw.Name())
	}

	m.weights[mw.Weight()] = mw.Name()
	m.middlewares = append(m.middlewares, mw)

	sort.SliceStable(m.middlewares, func(i, j int) bool {
		return m.middlewares[i].Weight() < m.middlewares[j].Weight()
	})

	return nil
}

// Wrap compiles the chain once; later registrations do not affect the returned handler.
func (m *Manager) Wrap(handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	m.mu.RLock()
	chain := make([]types.Middleware, len(m.middlewares))
	copy(chain, m.middlewares)
	m.mu.RUnlock()

	compiled := handler
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], compiled
		compiled = func(ctx *fasthttp.RequestCtx) {
			mw.Handle(ctx, next)
		}
	}

	return compiled
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.middlewares))
	for _, mw := range m.middlewares {
		names = append(names, mw.Name())
	}
	return names
}

// Stop releases background workers held by middlewares.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mw := range m.middlewares {
		if s, ok := mw.(stopper); ok {
			if err := s.Stop(); err != nil {
				m.logger.Warn("Middleware stop failed", zap.String("name", mw.Name()), zap.Error(err))
			}
		}
	}

	m.logger.Info("Middleware manager stopped")
}
