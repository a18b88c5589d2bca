package server

import (
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/dbus-service/utils"
)

type compiledRoute struct {
	method   string
	pattern  string
	segments []string
	handler  fasthttp.RequestHandler
}

// Router matches exact paths first, then patterns with {name} segments.
// Captured segments are stored as request user values under their names.
// A trailing slash is ignored.
type Router struct {
	mu       sync.RWMutex
	static   map[string]fasthttp.RequestHandler
	dynamic  []*compiledRoute
	notFound fasthttp.RequestHandler
}

func NewRouter() *Router {
	return &Router{
		static:   make(map[string]fasthttp.RequestHandler),
		notFound: defaultNotFound,
	}
}

func (r *Router) GET(path string, handler fasthttp.RequestHandler) {
	r.Handle(fasthttp.MethodGet, path, handler)
}

// Handle registers handler, replacing any previous handler for method and path.
func (r *Router) Handle(method, path string, handler fasthttp.RequestHandler) {
	if handler == nil {
		return
	}

	path = normalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.Contains(path, "{") {
		r.static[method+":"+path] = handler
		return
	}

	for _, route := range r.dynamic {
		if route.method == method && route.pattern == path {
			route.handler = handler
			return
		}
	}

	r.dynamic = append(r.dynamic, &compiledRoute{
		method:   method,
		pattern:  path,
		segments: splitPath(path),
		handler:  handler,
	})
}

func (r *Router) NotFound(handler fasthttp.RequestHandler) {
	if handler != nil {
		r.notFound = handler
	}
}

func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := normalizePath(utils.BytesToString(ctx.Path()))

	r.mu.RLock()
	handler := r.static[method+":"+path]
	if handler == nil && method == fasthttp.MethodHead {
		handler = r.static[fasthttp.MethodGet+":"+path]
	}
	r.mu.RUnlock()

	if handler != nil {
		handler(ctx)
		return
	}

	if handler, params := r.match(method, path); handler != nil {
		for name, value := range params {
			ctx.SetUserValue(name, value)
		}
		handler(ctx)
		return
	}

	r.notFound(ctx)
}

func (r *Router) match(method, path string) (fasthttp.RequestHandler, map[string]string) {
	segments := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.dynamic {
		if route.method != method && !(method == fasthttp.MethodHead && route.method == fasthttp.MethodGet) {
			continue
		}
		if params, ok := matchSegments(route.segments, segments); ok {
			return route.handler, params
		}
	}

	return nil, nil
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}

	params := make(map[string]string, 2)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if segments[i] == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}

	return params, true
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func defaultNotFound(ctx *fasthttp.RequestCtx) {
	utils.WriteError(ctx, fasthttp.StatusNotFound, "Endpoint "+string(ctx.Method())+" "+string(ctx.Path())+" not found")
}
