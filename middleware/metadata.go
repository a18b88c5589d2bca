package middleware

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const (
	requestIDHeader = "X-Request-ID"

	// RequestIDKey is the user value holding the request id.
	RequestIDKey = "request_id"
)

type MetadataMiddleware struct {
	logger         types.Logger
	metadataConfig *MetadataConfig
	weight         int
}

type MetadataConfig struct {
	GenerateRequestID bool `json:"generate_request_id"`
	MaxRequestIDLen   int  `json:"max_request_id_len"`
}

func NewMetadataMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *MetadataMiddleware {
	var metadataConfig = &MetadataConfig{
		GenerateRequestID: true,
		MaxRequestIDLen:   128,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, metadataConfig); err != nil {
			logger.Error("Failed to unmarshal Metadata middleware config", zap.Error(err))
		}
	}

	return &MetadataMiddleware{
		logger:         logger,
		metadataConfig: metadataConfig,
		weight:         item.Weight,
	}
}

func (m *MetadataMiddleware) Name() string { return "metadata" }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

// Handle makes sure every request carries an X-Request-ID and echoes it back.
// Oversized client ids are replaced.
func (m *MetadataMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	requestID := string(ctx.Request.Header.Peek(requestIDHeader))

	if len(requestID) > m.metadataConfig.MaxRequestIDLen {
		requestID = ""
	}

	if requestID == "" && m.metadataConfig.GenerateRequestID {
		requestID = uuid.NewString()
	}

	if requestID != "" {
		ctx.Request.Header.Set(requestIDHeader, requestID)
		ctx.SetUserValue(RequestIDKey, requestID)
	}

	next(ctx)

	if requestID != "" {
		ctx.Response.Header.Set(requestIDHeader, requestID)
	}
}

// RequestID returns the id assigned to ctx, if any.
func RequestID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
