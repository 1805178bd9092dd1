// Package metrics exposes Prometheus collectors for the daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they need.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	explainTotal    *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
	rateLimitHits   *prometheus.CounterVec
	generateTotal   *prometheus.CounterVec
	startTimeSecond prometheus.Gauge
}

// NewCollector creates and registers all collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipwise_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snipwise_http_request_duration_seconds",
				Help:    "HTTP request latency distributions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		explainTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipwise_explain_responses_total",
				Help: "Explain responses by provider mode (real, mock_forced, mock_fallback) and framing",
			},
			[]string{"mode", "stream"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipwise_upstream_errors_total",
				Help: "Failed upstream provider calls",
			},
			[]string{"provider", "op"},
		),
		rateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipwise_rate_limit_rejections_total",
				Help: "Requests rejected by the function rate limiter",
			},
			[]string{"scope"},
		),
		generateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipwise_generate_requests_total",
				Help: "ai-generate calls by outcome",
			},
			[]string{"outcome"},
		),
		startTimeSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snipwise_start_time_seconds",
			Help: "Unix time the daemon started",
		}),
	}
	c.registry.MustRegister(
		c.requestsTotal,
		c.requestLatency,
		c.explainTotal,
		c.upstreamErrors,
		c.rateLimitHits,
		c.generateTotal,
		c.startTimeSecond,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.startTimeSecond.Set(float64(time.Now().Unix()))
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a finished HTTP request.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordExplain counts one explain response.
func (c *Collector) RecordExplain(mode string, stream bool) {
	c.explainTotal.WithLabelValues(mode, strconv.FormatBool(stream)).Inc()
}

// RecordUpstreamError counts a failed provider call. op is "complete" or "stream".
func (c *Collector) RecordUpstreamError(provider, op string) {
	c.upstreamErrors.WithLabelValues(provider, op).Inc()
}

// RecordRateLimitHit counts a rejected request.
func (c *Collector) RecordRateLimitHit(scope string) {
	c.rateLimitHits.WithLabelValues(scope).Inc()
}

// RecordGenerate counts an ai-generate call.
func (c *Collector) RecordGenerate(outcome string) {
	c.generateTotal.WithLabelValues(outcome).Inc()
}
