// Package metrics exposes Prometheus counters for the proxy/theme engine
// and serves them over fasthttp, grounded directly on the teacher's
// internal/edge/metrics.PrometheusMetrics (same registration style, same
// fasthttpadaptor-wrapped promhttp.Handler).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector records proxy/theme engine metrics and serves them as a
// metricsserver.MetricsHandler.
type Collector struct {
	routesMatched   *prometheus.CounterVec
	backendFailures *prometheus.CounterVec
	themeApplied    *prometheus.CounterVec
	themeAborted    prometheus.Counter

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewCollector creates a Collector registered with the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry creates a Collector against a specific registry,
// used by tests to avoid colliding with the process-global default.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger}

	c.routesMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "routes_matched_total",
		Help:      "Number of requests that matched a proxy route.",
	}, []string{"domain"})

	c.backendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_failures_total",
		Help:      "Number of backend transport failures resulting in a 503.",
	}, []string{"backend"})

	c.themeApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "theme_applied_total",
		Help:      "Number of responses that had a ruleset applied.",
	}, []string{"outcome"})

	c.themeAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "theme_aborted_total",
		Help:      "Number of rule applications that reverted to the original theme.",
	})

	registerer.MustRegister(c.routesMatched, c.backendFailures, c.themeApplied, c.themeAborted)

	var gatherer prometheus.Gatherer
	if reg, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = reg
	} else {
		gatherer = prometheus.DefaultGatherer
	}
	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return c
}

// RecordRouteMatch increments the matched-route counter for a domain.
func (c *Collector) RecordRouteMatch(domain string) {
	c.routesMatched.WithLabelValues(domain).Inc()
}

// RecordBackendFailure increments the backend-failure counter.
func (c *Collector) RecordBackendFailure(backend string) {
	c.backendFailures.WithLabelValues(backend).Inc()
}

// RecordThemeApplied records whether theming succeeded or failed.
func (c *Collector) RecordThemeApplied(outcome string) {
	c.themeApplied.WithLabelValues(outcome).Inc()
}

// RecordThemeAborted increments the abort counter.
func (c *Collector) RecordThemeAborted() {
	c.themeAborted.Inc()
}

// ServeHTTP implements metricsserver.MetricsHandler.
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}
