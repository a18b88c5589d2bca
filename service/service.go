package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/dbus-service/api"
	"github.com/saiset-co/dbus-service/browser"
	"github.com/saiset-co/dbus-service/cache"
	"github.com/saiset-co/dbus-service/client"
	"github.com/saiset-co/dbus-service/cron"
	"github.com/saiset-co/dbus-service/docs"
	"github.com/saiset-co/dbus-service/health"
	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/metrics"
	"github.com/saiset-co/dbus-service/middleware"
	"github.com/saiset-co/dbus-service/scraper"
	"github.com/saiset-co/dbus-service/server"
	"github.com/saiset-co/dbus-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Option func(*Service)

// WithLogger replaces the logger built from config.
func WithLogger(l types.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLauncher replaces the headless Chrome launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(s *Service) { s.launcher = l }
}

// WithListener serves HTTP on ln instead of the configured host and port.
func WithListener(ln net.Listener) Option {
	return func(s *Service) { s.listener = ln }
}

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          *types.ServiceConfig
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration

	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.CacheStore
	launcher    browser.Launcher
	chrome      *browser.Chrome
	scraper     *scraper.Scraper
	router      *server.Router
	middlewares *middleware.Manager
	health      *health.Manager
	cron        *cron.Manager
	server      *server.HTTPServer
	listener    net.Listener
}

func NewService(ctx context.Context, config *types.ServiceConfig, opts ...Option) (*Service, error) {
	if config == nil {
		return nil, types.ErrConfigInvalid
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		config:          config,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}
	service.state.Store(StateStopped)

	for _, opt := range opts {
		opt(service)
	}

	if err := service.registerComponents(); err != nil {
		cancel()
		service.closeResources()
		return nil, types.WrapError(err, "failed to register components")
	}

	return service, nil
}

// Start runs the service until Stop, a termination signal, or cancellation of
// the parent context.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.Error("Service run panic", zap.String("stack", string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger.Info("Starting service",
		zap.String("name", s.config.Name),
		zap.String("version", s.config.Version),
		zap.String("environment", s.config.Environment))

	if err := s.startComponents(); err != nil {
		s.setState(StateStopped)
		s.cancel()
		s.closeResources()
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger.Info("Service stopped gracefully")
	_ = s.logger.Sync()
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Addr reports the bound HTTP address once the server is running.
func (s *Service) Addr() net.Addr {
	return s.server.Addr()
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) registerComponents() error {
	var err error

	if s.logger == nil {
		s.logger, err = logger.NewLogger(s.config.Logger)
		if err != nil {
			return types.WrapError(err, "failed to create logger")
		}
	}

	s.metrics, err = metrics.NewManager(s.logger, s.config.Metrics)
	if err != nil {
		return types.WrapError(err, "failed to create metrics manager")
	}

	s.cache, err = cache.NewStore(s.ctx, s.config.Cache, s.logger, s.metrics)
	if err != nil {
		return types.WrapError(err, "failed to create cache store")
	}

	httpClient := client.NewHTTPClient(s.logger, s.metrics, s.config.Scraper)

	if s.launcher == nil {
		s.chrome = browser.NewChrome(s.ctx, s.config.Scraper.Browser, s.config.Scraper.UserAgent, s.logger)
		s.launcher = s.chrome
	}

	s.scraper, err = scraper.New(s.config.Scraper, s.cache, httpClient, s.launcher, s.logger, s.metrics)
	if err != nil {
		return types.WrapError(err, "failed to create scraper")
	}

	s.router = server.NewRouter()
	handlers := api.NewHandlers(s.scraper, s.logger, s.config.Name, s.config.Version)
	handlers.Register(s.router)

	if s.config.Docs != nil && s.config.Docs.Enabled {
		documentation := docs.NewManager(s.config, s.logger)
		documentation.Add(handlers.Docs()...)
		documentation.RegisterRoutes(s.router)
	}

	if s.config.Metrics != nil && s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, s.metrics.Handler())
	}

	s.middlewares = middleware.NewManager(s.logger, s.metrics)
	if err := s.middlewares.RegisterMiddlewares(s.config.Middlewares); err != nil {
		return types.WrapError(err, "failed to register middlewares")
	}

	if s.config.Health != nil && s.config.Health.Enabled {
		s.health = health.NewManager(s.config, s.logger, s.router)
		s.registerHealthCheckers()
	}

	if s.config.Cron != nil && s.config.Cron.Enabled {
		s.cron = cron.NewManager(s.config.Cron, s.logger, s.metrics)
		if err := s.cron.RegisterJobs(s.config.Cron.Jobs, s.cache, s.scraper); err != nil {
			return types.WrapError(err, "failed to register cron jobs")
		}
	}

	s.server = server.NewHTTPServer(s.config.Server.HTTP, s.logger, s.router, s.middlewares)
	if s.config.Server.HTTP.ShutdownTimeout > 0 {
		s.shutdownTimeout = s.config.Server.HTTP.ShutdownTimeout + 5*time.Second
	}

	return nil
}

func (s *Service) registerHealthCheckers() {
	backend := s.cache
	if u, ok := backend.(interface{ Unwrap() types.CacheStore }); ok {
		backend = u.Unwrap()
	}

	switch store := backend.(type) {
	case *cache.FileStore:
		s.health.RegisterChecker("cache", health.CacheDirChecker(store.Dir()))
	case *cache.RedisStore:
		s.health.RegisterChecker("cache", health.PingChecker(store))
	}
}

func (s *Service) startComponents() error {
	if s.health != nil {
		if err := s.health.Start(); err != nil {
			return types.WrapError(err, "failed to start health manager")
		}
	}

	if s.cron != nil {
		if err := s.cron.Start(); err != nil {
			return types.WrapError(err, "failed to start cron manager")
		}
	}

	var err error
	if s.listener != nil {
		err = s.server.Serve(s.listener)
	} else {
		err = s.server.Start()
	}
	if err != nil {
		if s.cron != nil {
			_ = s.cron.Stop(context.Background())
		}
		return types.WrapError(err, "failed to start HTTP server")
	}

	s.logger.Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errors []error

	s.logger.Info("Stopping service components...")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		errors = append(errors, err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if s.cron != nil {
		g.Go(func() error {
			if err := s.cron.Stop(gCtx); err != nil {
				s.logger.Error("Failed to stop cron manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if s.health != nil {
		g.Go(func() error {
			if err := s.health.Stop(); err != nil {
				s.logger.Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		s.middlewares.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errors = append(errors, err)
		}
	}

	if err := s.closeResources(); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errors)
	}

	s.logger.Info("All components stopped successfully")
	return nil
}

// closeResources releases the browser and cache connections.
func (s *Service) closeResources() error {
	var firstErr error

	if s.chrome != nil {
		if err := s.chrome.Close(); err != nil {
			s.logger.Error("Failed to close browser", zap.Error(err))
			firstErr = err
		}
	}

	backend := s.cache
	if u, ok := backend.(interface{ Unwrap() types.CacheStore }); ok {
		backend = u.Unwrap()
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close cache store", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger.Info("Service context cancelled")
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}
