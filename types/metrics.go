package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

type MetricsManager interface {
	Counter(name string, labels map[string]string) Counter
	Gauge(name string, labels map[string]string) Gauge
	Histogram(name string, buckets []float64, labels map[string]string) Histogram
	Handler() fasthttp.RequestHandler
}

type Counter interface {
	Inc()
	Add(value float64)
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

type Histogram interface {
	Observe(value float64)
	ObserveDuration(start time.Time)
}
