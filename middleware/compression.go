package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const (
	AlgorithmGzip       = "gzip"
	AlgorithmBrotli     = "br"
	DefaultLevel        = 6
	DefaultThreshold    = 1024
	MinCompressionRatio = 0.05
)

// CompressionMiddleware encodes eligible responses with the first algorithm
// from Algorithms that the client accepts.
type CompressionMiddleware struct {
	logger            types.Logger
	compressionConfig *CompressionConfig
	weight            int
	gzipWriterPool    sync.Pool
	brotliWriterPool  sync.Pool
}

type CompressionConfig struct {
	Algorithms   []string `json:"algorithms"`
	Level        int      `json:"level"`
	Threshold    int      `json:"threshold"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(item *types.MiddlewareItemConfig, logger types.Logger) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Algorithms: []string{AlgorithmBrotli, AlgorithmGzip},
		Level:      DefaultLevel,
		Threshold:  DefaultThreshold,
		AllowedTypes: []string{
			"application/json",
			"application/javascript",
			"text/*",
		},
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
		}
	}

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}

	c := &CompressionMiddleware{
		logger:            logger,
		compressionConfig: compressionConfig,
		weight:            item.Weight,
	}

	c.gzipWriterPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, compressionConfig.Level)
		return w
	}
	c.brotliWriterPool.New = func() interface{} {
		return brotli.NewWriterLevel(io.Discard, compressionConfig.Level)
	}

	return c
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	algorithm := c.negotiate(ctx.Request.Header.Peek("Accept-Encoding"))

	next(ctx)

	ctx.Response.Header.Add("Vary", "Accept-Encoding")

	if algorithm == "" || len(ctx.Response.Header.Peek("Content-Encoding")) > 0 {
		return
	}

	if !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.Threshold {
		return
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		c.logger.Warn("Response compression failed", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}

	if 1.0-float64(len(compressed))/float64(len(body)) < MinCompressionRatio {
		return
	}

	ctx.Response.SetBody(compressed)
	ctx.Response.Header.Set("Content-Encoding", algorithm)
}

func (c *CompressionMiddleware) negotiate(acceptEncoding []byte) string {
	if len(acceptEncoding) == 0 {
		return ""
	}

	offered := make(map[string]bool)
	for _, part := range strings.Split(string(acceptEncoding), ",") {
		token, params, _ := strings.Cut(part, ";")
		token = strings.ToLower(strings.TrimSpace(token))

		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if weight, err := strconv.ParseFloat(q, 64); err == nil && weight == 0 {
				continue
			}
		}

		offered[token] = true
	}

	for _, algorithm := range c.compressionConfig.Algorithms {
		if offered[algorithm] {
			return algorithm
		}
	}

	return ""
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	if len(contentType) == 0 {
		return false
	}

	ct := string(contentType)
	if semicolon := strings.Index(ct, ";"); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok && strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (c *CompressionMiddleware) compress(algorithm string, data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)/2))

	switch algorithm {
	case AlgorithmBrotli:
		w := c.brotliWriterPool.Get().(*brotli.Writer)
		defer c.brotliWriterPool.Put(w)

		w.Reset(buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmGzip:
		w := c.gzipWriterPool.Get().(*gzip.Writer)
		defer c.gzipWriterPool.Put(w)

		w.Reset(buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewErrorf("unsupported algorithm: %s", algorithm)
	}

	return buf.Bytes(), nil
}
