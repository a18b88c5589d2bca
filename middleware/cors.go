package middleware

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

var optionsMethod = []byte(fasthttp.MethodOptions)

type CORSMiddleware struct {
	logger         types.Logger
	corsConfig     *CORSConfig
	weight         int
	allowsAll      bool
	allowedOrigins map[string]bool
	wildcardHosts  []string
	allowedMethods string
	allowedHeaders string
	exposedHeaders string
	maxAge         string
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *CORSMiddleware {
	var corsConfig = &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Response-Time"},
		MaxAge:         86400,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, corsConfig); err != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
		}
	}

	c := &CORSMiddleware{
		logger:         logger,
		corsConfig:     corsConfig,
		weight:         item.Weight,
		allowedOrigins: make(map[string]bool),
		allowedMethods: strings.Join(corsConfig.AllowedMethods, ","),
		allowedHeaders: strings.Join(corsConfig.AllowedHeaders, ","),
		exposedHeaders: strings.Join(corsConfig.ExposedHeaders, ","),
		maxAge:         strconv.Itoa(corsConfig.MaxAge),
	}

	for _, origin := range corsConfig.AllowedOrigins {
		switch {
		case origin == "*":
			c.allowsAll = true
		case strings.HasPrefix(origin, "*."):
			c.wildcardHosts = append(c.wildcardHosts, strings.TrimPrefix(origin, "*"))
		default:
			c.allowedOrigins[origin] = true
		}
	}

	return c
}

func (c *CORSMiddleware) Name() string { return "cors" }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	origin := ctx.Request.Header.Peek("Origin")
	if len(origin) == 0 {
		next(ctx)
		return
	}

	if !c.originAllowed(string(origin)) {
		c.logger.Warn("CORS request blocked",
			zap.ByteString("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		utils.WriteError(ctx, fasthttp.StatusForbidden, "Origin not allowed")
		return
	}

	c.setOrigin(ctx, origin)

	if bytes.Equal(ctx.Method(), optionsMethod) && len(ctx.Request.Header.Peek("Access-Control-Request-Method")) > 0 {
		ctx.Response.Header.Set("Access-Control-Allow-Methods", c.allowedMethods)
		ctx.Response.Header.Set("Access-Control-Allow-Headers", c.allowedHeaders)
		ctx.Response.Header.Set("Access-Control-Max-Age", c.maxAge)
		ctx.Response.Header.Add("Vary", "Access-Control-Request-Headers")
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		ctx.ResetBody()
		return
	}

	if c.exposedHeaders != "" {
		ctx.Response.Header.Set("Access-Control-Expose-Headers", c.exposedHeaders)
	}

	next(ctx)
}

func (c *CORSMiddleware) setOrigin(ctx *fasthttp.RequestCtx, origin []byte) {
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	} else {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Origin", origin)
		ctx.Response.Header.Add("Vary", "Origin")
	}

	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowsAll || c.allowedOrigins[origin] {
		return true
	}

	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}

	for _, suffix := range c.wildcardHosts {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}

	return false
}
