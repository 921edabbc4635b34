package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ExecutionsActive  prometheus.Gauge
	StagesTotal       *prometheus.CounterVec
	StageDuration     prometheus.Histogram

	// Registry metrics
	RegistryServices prometheus.Gauge

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a collector with its own registry, so tests and embedded
// servers never collide on the default one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbapi_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nbapi_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nbapi_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nbapi_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Execution metrics
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbapi_executions_total",
				Help: "Total number of service executions by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nbapi_execution_duration_seconds",
				Help:    "Service execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		ExecutionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nbapi_executions_active",
				Help: "Number of executions in progress",
			},
		),
		StagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbapi_stages_total",
				Help: "Total number of executed plan stages by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nbapi_stage_duration_seconds",
				Help:    "Plan stage duration in seconds",
				Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		// Registry metrics
		RegistryServices: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nbapi_registry_services",
				Help: "Number of services in the registry",
			},
		),

		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbapi_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"breaker", "to"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nbapi_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition of this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// SetRegistryServices sets the number of services in the registry
func (m *Metrics) SetRegistryServices(count int) {
	m.RegistryServices.Set(float64(count))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(breaker, to string) {
	m.BreakerTransitions.WithLabelValues(breaker, to).Inc()
}
