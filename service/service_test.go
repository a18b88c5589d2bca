package service

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/dbus-service/browser"
	"github.com/saiset-co/dbus-service/config"
	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
)

type noBrowser struct{}

func (noBrowser) NewPage(context.Context) (browser.Page, error) {
	return nil, types.NewErrorf("browser disabled in tests")
}

func testConfig(t *testing.T) *types.ServiceConfig {
	t.Helper()
	cfg := config.NewLoader().Defaults()
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	return cfg
}

func startService(t *testing.T, cfg *types.ServiceConfig) (*Service, *fasthttp.Client, chan error) {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	svc, err := NewService(context.Background(), cfg,
		WithLogger(logger.NewNop()),
		WithLauncher(noBrowser{}),
		WithListener(ln),
	)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- svc.Start() }()

	require.Eventually(t, svc.IsRunning, 2*time.Second, 10*time.Millisecond)

	client := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return svc, client, result
}

func get(t *testing.T, client *fasthttp.Client, uri string) (int, string) {
	t.Helper()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://dbus.test" + uri)
	require.NoError(t, client.Do(req, resp))

	return resp.StatusCode(), string(resp.Body())
}

func waitStopped(t *testing.T, result chan error) {
	t.Helper()
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc, client, result := startService(t, testConfig(t))

	status, body := get(t, client, "/health")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, `"status":"healthy"`)
	assert.Contains(t, body, `"cache"`)

	status, body = get(t, client, "/")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "/api/v1/lines")

	status, body = get(t, client, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "dbus_http_requests_total")

	status, body = get(t, client, "/openapi.json")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "/api/v1/lines/{lineCode}/{stopCode}")

	status, body = get(t, client, "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Contains(t, body, "Endpoint GET /nope not found")

	assert.ErrorIs(t, svc.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, svc.Stop())
	waitStopped(t, result)

	assert.False(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceIsNotRunning)
}

func TestServiceStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	svc, err := NewService(ctx, testConfig(t),
		WithLogger(logger.NewNop()),
		WithLauncher(noBrowser{}),
		WithListener(fasthttputil.NewInmemoryListener()),
	)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- svc.Start() }()
	require.Eventually(t, svc.IsRunning, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, result)
	<-svc.Done()
}

func TestServiceRegistersCronJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cron.Jobs["lines-prewarm"] = "0 0 * * * *"

	svc, err := NewService(context.Background(), cfg,
		WithLogger(logger.NewNop()),
		WithLauncher(noBrowser{}),
		WithListener(fasthttputil.NewInmemoryListener()),
	)
	require.NoError(t, err)

	jobs := svc.cron.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cache-sweep", jobs[0].Name)
	assert.Equal(t, "lines-prewarm", jobs[1].Name)
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	_, err := NewService(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrConfigInvalid)

	cfg := testConfig(t)
	cfg.Cache.Type = "memcached"
	_, err = NewService(context.Background(), cfg, WithLogger(logger.NewNop()), WithLauncher(noBrowser{}))
	assert.ErrorIs(t, err, types.ErrCacheType)

	cfg = testConfig(t)
	cfg.Scraper.Timezone = "Nowhere/Land"
	_, err = NewService(context.Background(), cfg, WithLogger(logger.NewNop()), WithLauncher(noBrowser{}))
	assert.Error(t, err)
}

func TestServiceWithMemoryBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Type = "memory"
	cfg.Cache.MaxEntries = 100
	cfg.Metrics.Type = "memory"

	svc, client, result := startService(t, cfg)

	status, body := get(t, client, "/health")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.NotContains(t, body, `"cache"`)

	status, body = get(t, client, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, `"name":"dbus_http_requests_total"`)
	assert.Contains(t, body, `"type":"counter"`)

	require.NoError(t, svc.Stop())
	waitStopped(t, result)
}

func TestNewServiceRejectsUnknownMetricsType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Type = "statsd"

	_, err := NewService(context.Background(), cfg, WithLogger(logger.NewNop()), WithLauncher(noBrowser{}))
	assert.ErrorIs(t, err, types.ErrMetricsType)
}
