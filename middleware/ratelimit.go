package middleware

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const shardCount = 64

const rateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimitMiddleware counts requests per client address in fixed windows.
// A client's window opens with its first request and resets once WindowMs has elapsed.
type RateLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	rateLimitConfig *RateLimitConfig
	window          time.Duration
	shards          [shardCount]*rateLimitShard
	proxies         trustedProxies
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	workerGroup     sync.WaitGroup
	weight          int
}

type rateLimitShard struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	start time.Time
	count int64
}

type RateLimitConfig struct {
	WindowMs       int64    `json:"window_ms"`
	MaxRequests    int64    `json:"max_requests"`
	TrustedProxies []string `json:"trusted_proxies"`
}

func NewRateLimitMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *RateLimitMiddleware {
	var rateLimitConfig = &RateLimitConfig{
		WindowMs:    15 * 60 * 1000,
		MaxRequests: 100,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, rateLimitConfig); err != nil {
			logger.Error("Failed to unmarshal RateLimit middleware config", zap.Error(err))
		}
	}

	if rateLimitConfig.WindowMs <= 0 {
		rateLimitConfig.WindowMs = 15 * 60 * 1000
	}

	rl := &RateLimitMiddleware{
		logger:          logger,
		metrics:         metrics,
		rateLimitConfig: rateLimitConfig,
		window:          time.Duration(rateLimitConfig.WindowMs) * time.Millisecond,
		proxies:         newTrustedProxies(rateLimitConfig.TrustedProxies, logger),
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
		weight:          item.Weight,
	}

	for i := range rl.shards {
		rl.shards[i] = &rateLimitShard{clients: make(map[string]*clientWindow)}
	}

	rl.workerGroup.Add(1)
	go rl.cleanupWorker()

	return rl
}

func (rl *RateLimitMiddleware) Name() string { return "rate-limit" }
func (rl *RateLimitMiddleware) Weight() int  { return rl.weight }

func (rl *RateLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	client := rl.proxies.clientAddr(ctx)

	count, reset := rl.hit(client)
	remaining := rl.rateLimitConfig.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	ctx.Response.Header.Set("X-RateLimit-Limit", strconv.FormatInt(rl.rateLimitConfig.MaxRequests, 10))
	ctx.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	ctx.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

	if count > rl.rateLimitConfig.MaxRequests {
		rl.reject(ctx, client, reset)
		return
	}

	next(ctx)
}

// hit records one request and returns the count within the current window
// together with the window's end.
func (rl *RateLimitMiddleware) hit(client string) (int64, time.Time) {
	now := rl.now()
	shard := rl.shard(client)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.clients[client]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &clientWindow{start: now}
		shard.clients[client] = w
	}

	w.count++
	return w.count, w.start.Add(rl.window)
}

func (rl *RateLimitMiddleware) shard(client string) *rateLimitShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(client))
	return rl.shards[h.Sum32()%shardCount]
}

func (rl *RateLimitMiddleware) reject(ctx *fasthttp.RequestCtx, client string, reset time.Time) {
	rl.logger.Warn("Rate limit exceeded",
		zap.String("ip", client),
		zap.ByteString("route", ctx.Path()))

	if rl.metrics != nil {
		rl.metrics.Counter("http_rate_limited_total", nil).Inc()
	}

	retryAfter := int64(reset.Sub(rl.now()).Seconds() + 0.5)
	if retryAfter < 1 {
		retryAfter = 1
	}
	ctx.Response.Header.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

	utils.WriteError(ctx, fasthttp.StatusTooManyRequests, rateLimitMessage)
}

func (rl *RateLimitMiddleware) cleanupWorker() {
	defer rl.workerGroup.Done()

	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets clients whose window has closed.
func (rl *RateLimitMiddleware) cleanup() {
	now := rl.now()
	removed := 0

	for _, shard := range rl.shards {
		shard.mu.Lock()
		for client, w := range shard.clients {
			if now.Sub(w.start) >= rl.window {
				delete(shard.clients, client)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		rl.logger.Debug("Rate limit windows expired", zap.Int("clients", removed))
	}
}

func (rl *RateLimitMiddleware) Stop() error {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})

	done := make(chan struct{})
	go func() {
		rl.workerGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return types.NewErrorf("timeout waiting for rate limit worker to stop")
	}
}
