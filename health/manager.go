package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

type Manager struct {
	config       *types.ServiceConfig
	logger       types.Logger
	router       types.HTTPRouter
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	mu           sync.RWMutex
	running      atomic.Bool
	checkTimeout time.Duration
}

func NewManager(config *types.ServiceConfig, logger types.Logger, router types.HTTPRouter) *Manager {
	checkTimeout := 5 * time.Second
	if config.Health != nil && config.Health.CheckTimeout > 0 {
		checkTimeout = config.Health.CheckTimeout
	}

	return &Manager{
		config:       config,
		logger:       logger,
		router:       router,
		checkers:     make(map[string]types.HealthChecker),
		checkTimeout: checkTimeout,
		startTime:    time.Now(),
	}
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

// Check runs every checker concurrently, each bounded by the check timeout.
func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	var (
		g        errgroup.Group
		resultMu sync.Mutex
		results  = make(map[string]types.HealthCheck, len(checkers))
	)

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(ctx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return hm.buildReport(results)
}

// Start registers the health and version routes.
func (hm *Manager) Start() error {
	if !hm.running.CompareAndSwap(false, true) {
		return types.ErrServiceIsRunning
	}

	path := "/health"
	if hm.config.Health != nil && hm.config.Health.Path != "" {
		path = hm.config.Health.Path
	}

	hm.router.GET(path, hm.handleHealth)
	hm.router.GET("/version", hm.handleVersion)

	hm.logger.Info("Health manager started", zap.String("path", path))
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.running.CompareAndSwap(true, false) {
		return types.ErrServiceIsNotRunning
	}

	hm.logger.Info("Health manager stopped")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.running.Load()
}

func (hm *Manager) handleHealth(ctx *fasthttp.RequestCtx) {
	if !hm.IsRunning() {
		utils.WriteError(ctx, fasthttp.StatusServiceUnavailable, "health manager is not running")
		return
	}

	report := hm.Check(ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	utils.WriteJSON(ctx, status, report)
}

func (hm *Manager) handleVersion(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{
		"version":    hm.config.Version,
		"build_info": getBuildInfo(hm.config.Version),
	})
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("Health check panicked: %v", r),
				}
			}
		}()

		resultChan <- checker(checkCtx)
	}()

	var result types.HealthCheck
	select {
	case result = <-resultChan:
	case <-checkCtx.Done():
		hm.logger.Warn("Health check timeout", zap.String("check", name))
		result = types.HealthCheck{
			Status:  types.StatusUnhealthy,
			Message: "Health check timeout",
		}
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)
	return result
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	summary := types.HealthSummary{
		Total: len(results),
	}

	overallStatus := types.StatusHealthy
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
			overallStatus = types.StatusUnhealthy
		default:
			summary.Unknown++
			if overallStatus == types.StatusHealthy {
				overallStatus = types.StatusUnknown
			}
		}
	}

	return types.HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime).Seconds(),
		Service: types.ServiceInfo{
			Name:        hm.config.Name,
			Version:     hm.config.Version,
			Environment: hm.config.Environment,
		},
		Checks:  results,
		Summary: summary,
	}
}
