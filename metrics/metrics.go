// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuoteCacheRequests counts cache lookups by result (hit, miss)
	QuoteCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_cache_requests_total",
		Help: "Quote cache lookups by result.",
	}, []string{"result"})

	// UpstreamRequests counts reference data calls by outcome
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Reference data provider requests by outcome.",
	}, []string{"outcome"})

	// HTTPRequestDuration observes API latency
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		QuoteCacheRequests,
		UpstreamRequests,
		HTTPRequestDuration,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
