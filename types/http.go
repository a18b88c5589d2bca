package types

import "github.com/valyala/fasthttp"

type HTTPRouter interface {
	GET(path string, handler fasthttp.RequestHandler)
	Handle(method, path string, handler fasthttp.RequestHandler)
}
