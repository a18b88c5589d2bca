package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

var defaultSecureHeaders = map[string]string{
	"Content-Security-Policy":           "default-src 'self';base-uri 'self';font-src 'self' https: data:;form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';upgrade-insecure-requests",
	"Cross-Origin-Opener-Policy":        "same-origin",
	"Cross-Origin-Resource-Policy":      "same-origin",
	"Origin-Agent-Cluster":              "?1",
	"Referrer-Policy":                   "no-referrer",
	"Strict-Transport-Security":         "max-age=31536000; includeSubDomains",
	"X-Content-Type-Options":            "nosniff",
	"X-DNS-Prefetch-Control":            "off",
	"X-Download-Options":                "noopen",
	"X-Frame-Options":                   "SAMEORIGIN",
	"X-Permitted-Cross-Domain-Policies": "none",
	"X-XSS-Protection":                  "0",
}

// SecureHeadersMiddleware sets a fixed set of hardening response headers.
type SecureHeadersMiddleware struct {
	headers map[string]string
	weight  int
}

type SecureHeadersConfig struct {
	// Headers overrides defaults; an empty value removes the header.
	Headers map[string]string `json:"headers"`
}

func NewSecureHeadersMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *SecureHeadersMiddleware {
	secureConfig := &SecureHeadersConfig{}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, secureConfig); err != nil {
			logger.Error("Failed to unmarshal Secure middleware config", zap.Error(err))
		}
	}

	headers := make(map[string]string, len(defaultSecureHeaders))
	for name, value := range defaultSecureHeaders {
		headers[name] = value
	}
	for name, value := range secureConfig.Headers {
		if value == "" {
			delete(headers, name)
			continue
		}
		headers[name] = value
	}

	return &SecureHeadersMiddleware{
		headers: headers,
		weight:  item.Weight,
	}
}

func (s *SecureHeadersMiddleware) Name() string { return "secure" }
func (s *SecureHeadersMiddleware) Weight() int  { return s.weight }

func (s *SecureHeadersMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	next(ctx)

	for name, value := range s.headers {
		ctx.Response.Header.Set(name, value)
	}
	ctx.Response.Header.Del("X-Powered-By")
}
