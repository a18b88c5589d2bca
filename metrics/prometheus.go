package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// PrometheusMetrics lazily registers one vector per metric name. Every call for
// a given name must use the same label keys.
type PrometheusMetrics struct {
	logger     types.Logger
	config     *types.MetricsConfig
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.Mutex
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", config.Namespace),
		zap.Bool("go_metrics", config.EnableGoMetrics))

	return &PrometheusMetrics{
		logger:     logger,
		config:     config,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter, exists := p.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        name,
			Help:        fmt.Sprintf("Counter metric %s", name),
			ConstLabels: p.config.Labels,
		}, labelNames(labels))

		p.registry.MustRegister(counter)
		p.counters[name] = counter
		p.logger.Debug("Prometheus counter created", zap.String("name", name))
	}

	return counter.With(labels)
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	gauge, exists := p.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Name:        name,
			Help:        fmt.Sprintf("Gauge metric %s", name),
			ConstLabels: p.config.Labels,
		}, labelNames(labels))

		p.registry.MustRegister(gauge)
		p.gauges[name] = gauge
		p.logger.Debug("Prometheus gauge created", zap.String("name", name))
	}

	return gauge.With(labels)
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	histogram, exists := p.histograms[name]
	if !exists {
		histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Name:        name,
			Help:        fmt.Sprintf("Histogram metric %s", name),
			Buckets:     buckets,
			ConstLabels: p.config.Labels,
		}, labelNames(labels))

		p.registry.MustRegister(histogram)
		p.histograms[name] = histogram
		p.logger.Debug("Prometheus histogram created", zap.String("name", name))
	}

	return &prometheusHistogram{observer: histogram.With(labels)}
}

func (p *PrometheusMetrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type prometheusHistogram struct {
	observer prometheus.Observer
}

func (h *prometheusHistogram) Observe(value float64) {
	h.observer.Observe(value)
}

func (h *prometheusHistogram) ObserveDuration(start time.Time) {
	h.observer.Observe(time.Since(start).Seconds())
}
