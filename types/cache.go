package types

import (
	"context"
)

const (
	CacheKeyBusLines     = "bus_lines"
	CacheKeySecurityCode = "security_code"
	cacheKeyLineStops    = "line_stops_"
)

func LineStopsKey(lineCode string) string {
	return cacheKeyLineStops + lineCode
}

// CacheStore is a key to JSON value store with a single process-wide TTL.
// Get reports false both for keys never set and for expired or unreadable entries.
type CacheStore interface {
	Get(ctx context.Context, key string, target interface{}) bool
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context)
}

// CacheSweeper is implemented by stores that keep expired entries around until removed.
type CacheSweeper interface {
	Sweep(ctx context.Context) (int, error)
}
