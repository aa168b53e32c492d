package modserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a Runtime. A nil *Metrics
// records nothing.
type Metrics struct {
	// Load cycle metrics
	LoadsTotal   *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	Modules      prometheus.Gauge
	Resources    prometheus.Gauge

	// Cache metrics
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheInvalidations prometheus.Counter

	// Middleware metrics
	MiddlewareDuration *prometheus.HistogramVec
	MiddlewareTimeouts *prometheus.CounterVec
	MiddlewareErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "config_loads_total",
				Help:      "Total number of config load cycles by result",
			},
			[]string{"result"},
		),
		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "modserver",
				Name:      "config_load_duration_seconds",
				Help:      "Config load cycle duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		Modules: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modserver",
				Name:      "modules",
				Help:      "Number of modules in the current snapshot",
			},
		),
		Resources: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modserver",
				Name:      "resources",
				Help:      "Number of resources in the current snapshot",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "config_cache_hits_total",
				Help:      "Total number of config requests served from cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "config_cache_misses_total",
				Help:      "Total number of config requests that triggered a load",
			},
		),
		CacheInvalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "config_cache_invalidations_total",
				Help:      "Total number of explicit cache invalidations",
			},
		),

		MiddlewareDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modserver",
				Name:      "middleware_step_duration_seconds",
				Help:      "Middleware step duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5, 10},
			},
			[]string{"point"},
		),
		MiddlewareTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "middleware_timeouts_total",
				Help:      "Total number of middleware steps that exceeded their budget",
			},
			[]string{"point", "module"},
		),
		MiddlewareErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modserver",
				Name:      "middleware_errors_total",
				Help:      "Total number of middleware steps that failed",
			},
			[]string{"point", "module"},
		),
	}
}

func (m *Metrics) observeLoad(d time.Duration, snap *Snapshot, err error) {
	if m == nil {
		return
	}
	m.LoadDuration.Observe(d.Seconds())
	if err != nil {
		m.LoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.LoadsTotal.WithLabelValues("success").Inc()
	m.Modules.Set(float64(len(snap.Modules)))
	m.Resources.Set(float64(len(snap.Resources)))
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) cacheInvalidated() {
	if m != nil {
		m.CacheInvalidations.Inc()
	}
}

func (m *Metrics) observeStep(point string, d time.Duration) {
	if m != nil {
		m.MiddlewareDuration.WithLabelValues(point).Observe(d.Seconds())
	}
}

func (m *Metrics) stepTimedOut(point, module string) {
	if m != nil {
		m.MiddlewareTimeouts.WithLabelValues(point, module).Inc()
	}
}

func (m *Metrics) stepFailed(point, module string) {
	if m != nil {
		m.MiddlewareErrors.WithLabelValues(point, module).Inc()
	}
}
