package types

import "github.com/valyala/fasthttp"

type Middleware interface {
	Name() string
	Weight() int
	Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler)
}

// MiddlewareManager composes the registered middlewares around a handler.
type MiddlewareManager interface {
	Wrap(handler fasthttp.RequestHandler) fasthttp.RequestHandler
}
