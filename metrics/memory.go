package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

// MetricValue is one series in the JSON snapshot served by MemoryMetrics.
type MetricValue struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Value   float64           `json:"value"`
	Count   uint64            `json:"count,omitempty"`
	Buckets map[string]uint64 `json:"buckets,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// MemoryMetrics keeps series in process and serves them as JSON. It backs the
// metrics route when no Prometheus registry is wanted.
type MemoryMetrics struct {
	config     *types.MetricsConfig
	logger     types.Logger
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
	mu         sync.RWMutex
}

func NewMemoryMetrics(logger types.Logger, config *types.MetricsConfig) *MemoryMetrics {
	return &MemoryMetrics{
		config:     config,
		logger:     logger,
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := m.seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, exists := m.counters[key]
	if !exists {
		counter = &memoryCounter{name: m.fullName(name), labels: copyLabels(labels)}
		m.counters[key] = counter
	}

	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := m.seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, exists := m.gauges[key]
	if !exists {
		gauge = &memoryGauge{name: m.fullName(name), labels: copyLabels(labels)}
		m.gauges[key] = gauge
	}

	return gauge
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := m.seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, exists := m.histograms[key]
	if !exists {
		sorted := append([]float64(nil), buckets...)
		sort.Float64s(sorted)
		histogram = &memoryHistogram{
			name:    m.fullName(name),
			labels:  copyLabels(labels),
			buckets: sorted,
			counts:  make([]uint64, len(sorted)),
		}
		m.histograms[key] = histogram
	}

	return histogram
}

// Snapshot returns every series ordered by name and labels.
func (m *MemoryMetrics) Snapshot() []MetricValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))

	for _, counter := range m.counters {
		values = append(values, MetricValue{Name: counter.name, Type: "counter", Value: counter.value(), Labels: counter.labels})
	}

	for _, gauge := range m.gauges {
		values = append(values, MetricValue{Name: gauge.name, Type: "gauge", Value: gauge.value(), Labels: gauge.labels})
	}

	for _, histogram := range m.histograms {
		values = append(values, histogram.snapshot())
	}

	sort.Slice(values, func(i, j int) bool {
		if values[i].Name != values[j].Name {
			return values[i].Name < values[j].Name
		}
		return labelString(values[i].Labels) < labelString(values[j].Labels)
	})

	return values
}

func (m *MemoryMetrics) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		data, err := utils.Marshal(m.Snapshot())
		if err != nil {
			m.logger.Error("Failed to encode metrics", zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}

		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(data)
	}
}

func (m *MemoryMetrics) fullName(name string) string {
	if m.config == nil || m.config.Namespace == "" {
		return name
	}
	return m.config.Namespace + "_" + name
}

func (m *MemoryMetrics) seriesKey(name string, labels map[string]string) string {
	return name + "{" + labelString(labels) + "}"
}

func labelString(labels map[string]string) string {
	names := labelNames(labels)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(labels[name])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// atomicFloat stores a float64 as bits and updates it with CAS.
type atomicFloat struct {
	bits uint64
}

func (f *atomicFloat) add(delta float64) {
	for {
		old := atomic.LoadUint64(&f.bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&f.bits, old, next) {
			return
		}
	}
}

func (f *atomicFloat) set(value float64) {
	atomic.StoreUint64(&f.bits, math.Float64bits(value))
}

func (f *atomicFloat) value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.bits))
}

type memoryCounter struct {
	atomicFloat
	name   string
	labels map[string]string
}

func (c *memoryCounter) Inc() { c.add(1) }

// Add ignores negative deltas; counters only go up.
func (c *memoryCounter) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.add(delta)
}

type memoryGauge struct {
	atomicFloat
	name   string
	labels map[string]string
}

func (g *memoryGauge) Set(value float64) { g.set(value) }
func (g *memoryGauge) Inc()              { g.add(1) }
func (g *memoryGauge) Dec()              { g.add(-1) }

type memoryHistogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

func (h *memoryHistogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
	h.sum += value
	h.count++
}

func (h *memoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *memoryHistogram) snapshot() MetricValue {
	h.mu.Lock()
	defer h.mu.Unlock()

	buckets := make(map[string]uint64, len(h.buckets))
	for i, bound := range h.buckets {
		buckets[formatBound(bound)] = h.counts[i]
	}

	return MetricValue{
		Name:    h.name,
		Type:    "histogram",
		Value:   h.sum,
		Count:   h.count,
		Buckets: buckets,
		Labels:  h.labels,
	}
}

func formatBound(bound float64) string {
	return strconv.FormatFloat(bound, 'g', -1, 64)
}
