package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

type routeRecorder map[string]fasthttp.RequestHandler

func (r routeRecorder) GET(path string, handler fasthttp.RequestHandler) {
	r[path] = handler
}

func (r routeRecorder) Handle(_, path string, handler fasthttp.RequestHandler) {
	r[path] = handler
}

func newManager(checkTimeout time.Duration) (*Manager, routeRecorder) {
	routes := routeRecorder{}
	config := &types.ServiceConfig{
		Name:        "dbus-service",
		Version:     "1.2.3",
		Environment: "test",
		Health:      &types.HealthConfig{Enabled: true, Path: "/health", CheckTimeout: checkTimeout},
	}
	return NewManager(config, logger.NewNop(), routes), routes
}

func healthy(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusHealthy}
}

func TestCheckAggregates(t *testing.T) {
	hm, _ := newManager(time.Second)
	hm.RegisterChecker("cache", healthy)
	hm.RegisterChecker("upstream", func(context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusUnknown}
	})

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusUnknown, report.Status)
	assert.Equal(t, types.HealthSummary{Total: 2, Healthy: 1, Unknown: 1}, report.Summary)
	assert.Equal(t, "cache", report.Checks["cache"].Name)
	assert.Equal(t, "1.2.3", report.Service.Version)

	hm.RegisterChecker("broken", func(context.Context) types.HealthCheck { panic("boom") })
	report = hm.Check(context.Background())
	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["broken"].Message, "panicked")
}

func TestCheckTimeout(t *testing.T) {
	hm, _ := newManager(20 * time.Millisecond)
	hm.RegisterChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Equal(t, "Health check timeout", report.Checks["slow"].Message)
}

// newRequestCtx returns a request context usable as a context.Context outside a server.
func newRequestCtx() *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI("/health")

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func TestHealthRoute(t *testing.T) {
	hm, routes := newManager(time.Second)
	hm.RegisterChecker("cache", healthy)
	require.NoError(t, hm.Start())
	assert.ErrorIs(t, hm.Start(), types.ErrServiceIsRunning)

	handler, ok := routes["/health"]
	require.True(t, ok)
	require.Contains(t, routes, "/version")

	ctx := newRequestCtx()
	handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var report types.HealthReport
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &report))
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.GreaterOrEqual(t, report.Uptime, 0.0)

	hm.RegisterChecker("redis", PingChecker(failingPinger{}))
	ctx = newRequestCtx()
	handler(ctx)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())

	require.NoError(t, hm.Stop())
	ctx = newRequestCtx()
	handler(ctx)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestCacheDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, types.StatusHealthy, CacheDirChecker(dir)(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := CacheDirChecker(filepath.Join(dir, "missing"))(context.Background())
	assert.Equal(t, types.StatusUnhealthy, missing.Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Equal(t, types.StatusUnhealthy, CacheDirChecker(file)(context.Background()).Status)
}
