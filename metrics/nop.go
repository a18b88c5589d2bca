package metrics

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/dbus-service/types"
)

// NopMetrics discards every observation. Used when metrics are disabled.
type NopMetrics struct{}

func NewNop() NopMetrics { return NopMetrics{} }

func (NopMetrics) Counter(string, map[string]string) types.Counter { return nopInstrument{} }

func (NopMetrics) Gauge(string, map[string]string) types.Gauge { return nopInstrument{} }

func (NopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return nopInstrument{}
}

func (NopMetrics) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

type nopInstrument struct{}

func (nopInstrument) Inc()                      {}
func (nopInstrument) Dec()                      {}
func (nopInstrument) Add(float64)               {}
func (nopInstrument) Set(float64)               {}
func (nopInstrument) Observe(float64)           {}
func (nopInstrument) ObserveDuration(time.Time) {}
