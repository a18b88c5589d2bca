package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

var requestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	level         zapcore.Level
	proxies       trustedProxies
	weight        int
}

type LoggingConfig struct {
	LogLevel       string   `json:"log_level"`
	LogHeaders     bool     `json:"log_headers"`
	SkipPaths      []string `json:"skip_paths"`
	TrustedProxies []string `json:"trusted_proxies"`
}

func NewLoggingMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	var loggingConfig = &LoggingConfig{
		LogLevel: "info",
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, loggingConfig); err != nil {
			logger.Error("Failed to unmarshal Logging middleware config", zap.Error(err))
		}
	}

	level, err := zapcore.ParseLevel(loggingConfig.LogLevel)
	if err != nil {
		logger.Warn("Unknown logging middleware level, using info", zap.String("level", loggingConfig.LogLevel))
		level = zapcore.InfoLevel
	}

	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		level:         level,
		proxies:       newTrustedProxies(loggingConfig.TrustedProxies, logger),
		weight:        item.Weight,
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	start := time.Now()

	l.logger.Debug("Incoming request",
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("url", ctx.RequestURI()),
		zap.String("remote_addr", l.proxies.clientAddr(ctx)),
		zap.ByteString("user_agent", ctx.UserAgent()))

	next(ctx)

	duration := time.Since(start)
	ctx.Response.Header.Set("X-Response-Time", strconv.FormatInt(duration.Milliseconds(), 10))

	l.observe(ctx, start)

	if l.skipped(ctx) {
		return
	}

	l.logResponse(ctx, duration)
}

func (l *LoggingMiddleware) observe(ctx *fasthttp.RequestCtx, start time.Time) {
	if l.metrics == nil {
		return
	}

	labels := map[string]string{
		"method": string(ctx.Method()),
		"status": strconv.Itoa(ctx.Response.StatusCode()),
	}
	l.metrics.Counter("http_requests_total", labels).Inc()
	l.metrics.Histogram("http_request_duration_seconds", requestDurationBuckets, labels).ObserveDuration(start)
}

func (l *LoggingMiddleware) skipped(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	for _, skip := range l.loggingConfig.SkipPaths {
		if path == skip {
			return true
		}
	}
	return false
}

func (l *LoggingMiddleware) logResponse(ctx *fasthttp.RequestCtx, duration time.Duration) {
	status := ctx.Response.StatusCode()

	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("url", ctx.RequestURI()),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.Int("content_length", len(ctx.Response.Body())),
		zap.String("remote_addr", l.proxies.clientAddr(ctx)),
	}

	if requestID := ctx.Response.Header.Peek(requestIDHeader); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	if l.loggingConfig.LogHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	switch {
	case status >= 500:
		l.logger.Error("Request completed", fields...)
	case status >= 400:
		l.logger.Warn("Request completed", fields...)
	default:
		l.logger.Log(l.level, "Request completed", fields...)
	}
}

func sanitizeHeaders(ctx *fasthttp.RequestCtx) map[string]string {
	sanitized := make(map[string]string)

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = string(value)
		}
	})

	return sanitized
}

