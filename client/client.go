package client

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// maxRedirects bounds GET redirect chains; form posts are never redirected.
const maxRedirects = 5

// HTTPClient performs single-attempt requests against the operator website.
// Failures are returned to the caller as-is; there is no retry or breaker.
type HTTPClient struct {
	logger    types.Logger
	metrics   types.MetricsManager
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

type Option func(*fasthttp.Client)

// WithDial overrides the transport dialer, mainly for in-memory listeners in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *fasthttp.Client) {
		c.Dial = dial
	}
}

func NewHTTPClient(logger types.Logger, metrics types.MetricsManager, config *types.ScraperConfig, opts ...Option) *HTTPClient {
	httpClient := &fasthttp.Client{
		Name:                     config.UserAgent,
		MaxIdleConnDuration:      30 * time.Second,
		NoDefaultUserAgentHeader: config.UserAgent != "",
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, 10*time.Second)
		},
	}

	for _, opt := range opts {
		opt(httpClient)
	}

	return &HTTPClient{
		logger:    logger,
		metrics:   metrics,
		client:    httpClient,
		timeout:   config.RequestTimeout,
		userAgent: config.UserAgent,
	}
}

func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*types.HTTPResponse, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	return c.do(ctx, req, headers)
}

func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*types.HTTPResponse, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString(form.Encode())

	return c.do(ctx, req, headers)
}

func (c *HTTPClient) do(ctx context.Context, req *fasthttp.Request, headers map[string]string) (*types.HTTPResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	method := string(req.Header.Method())
	host := string(req.URI().Host())
	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		req.SetTimeout(remaining)
	} else if c.timeout > 0 {
		req.SetTimeout(c.timeout)
	}

	var err error
	if method == fasthttp.MethodGet {
		err = c.client.DoRedirects(req, resp, maxRedirects)
	} else {
		err = c.client.Do(req, resp)
	}

	if err != nil {
		c.recordMetrics(method, host, "error", start)
		c.logger.Warn("Outbound request failed",
			zap.String("method", method),
			zap.String("url", req.URI().String()),
			zap.Error(err))
		return nil, types.WrapError(err, "request to "+host+" failed")
	}

	status := resp.StatusCode()
	c.recordMetrics(method, host, strconv.Itoa(status), start)

	c.logger.Debug("Outbound request completed",
		zap.String("method", method),
		zap.String("url", req.URI().String()),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, types.WrapError(err, "failed to decode response body")
	}

	return &types.HTTPResponse{
		StatusCode: status,
		Body:       append([]byte(nil), body...),
	}, nil
}

func (c *HTTPClient) recordMetrics(method, host, status string, start time.Time) {
	if c.metrics == nil {
		return
	}

	labels := map[string]string{"method": method, "host": host, "status": status}
	c.metrics.Counter("http_client_requests_total", labels).Inc()
	c.metrics.Histogram("http_client_request_duration_seconds", nil, labels).ObserveDuration(start)
}
