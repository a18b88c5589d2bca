package scraper

import (
	"errors"
	"time"

	"github.com/saiset-co/dbus-service/types"
)

func observeFetch(metrics types.MetricsManager, target string, err error, start time.Time) {
	if metrics == nil {
		return
	}

	labels := map[string]string{"target": target, "result": fetchResult(err)}
	metrics.Counter("scraper_fetches_total", labels).Inc()
	metrics.Histogram("scraper_fetch_duration_seconds",
		[]float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, labels).ObserveDuration(start)
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrUpstreamHTTP):
		return "upstream_http"
	case errors.Is(err, types.ErrUpstreamFormat):
		return "upstream_format"
	case errors.Is(err, types.ErrParse):
		return "parse"
	case errors.Is(err, types.ErrCacheWrite):
		return "cache_write"
	default:
		return "error"
	}
}
