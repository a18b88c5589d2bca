package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type HTTPServer struct {
	config      *types.HTTPConfig
	logger      types.Logger
	router      *Router
	middlewares types.MiddlewareManager
	server      *fasthttp.Server
	listener    net.Listener
	state       atomic.Int32
	done        chan struct{}
	mu          sync.Mutex
}

func NewHTTPServer(config *types.HTTPConfig, logger types.Logger, router *Router, middlewares types.MiddlewareManager) *HTTPServer {
	return &HTTPServer{
		config:      config,
		logger:      logger,
		router:      router,
		middlewares: middlewares,
	}
}

// Start listens on the configured address and serves in the background.
func (h *HTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return types.WrapError(err, "HTTP listener failed")
	}

	if err := h.Serve(ln); err != nil {
		_ = ln.Close()
		return err
	}

	return nil
}

// Serve takes ownership of ln and serves on it in the background.
func (h *HTTPServer) Serve(ln net.Listener) error {
	if !h.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return types.ErrServerAlreadyRunning
	}

	h.mu.Lock()
	h.listener = ln
	h.server = &fasthttp.Server{
		Handler:                      h.Handler(),
		Name:                         "dbus-service",
		ReadTimeout:                  h.config.ReadTimeout,
		WriteTimeout:                 h.config.WriteTimeout,
		IdleTimeout:                  h.config.IdleTimeout,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
		Logger:                       fasthttpLogger{h.logger},
	}
	h.done = make(chan struct{})
	server, done := h.server, h.done
	h.mu.Unlock()

	h.state.Store(int32(StateRunning))

	go func() {
		defer close(done)

		if err := server.Serve(ln); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
		}
		h.state.Store(int32(StateStopped))
	}()

	h.logger.Info("HTTP server started", zap.String("address", ln.Addr().String()))

	return nil
}

// Handler is the router wrapped by the middleware chain.
func (h *HTTPServer) Handler() fasthttp.RequestHandler {
	if h.middlewares == nil {
		return h.router.Handler
	}
	return h.middlewares.Wrap(h.router.Handler)
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	if !h.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return types.ErrServerNotRunning
	}

	h.mu.Lock()
	server, done := h.server, h.done
	h.mu.Unlock()

	timeout := h.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		h.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	select {
	case <-done:
		h.logger.Info("HTTP server stopped gracefully")
	case <-shutdownCtx.Done():
		h.logger.Warn("HTTP server stop timeout, open connections were dropped")
	}

	h.state.Store(int32(StateStopped))
	return nil
}

func (h *HTTPServer) IsRunning() bool {
	return State(h.state.Load()) == StateRunning
}

func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

type fasthttpLogger struct {
	logger types.Logger
}

func (l fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
