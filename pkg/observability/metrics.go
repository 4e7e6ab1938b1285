// Package observability exposes kette's Prometheus metrics and the chain
// units that record them.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kette"

// LatencyBuckets spans 1ms to 30s.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Registry holds every kette metric plus the Go runtime and process
// collectors. Handler serves it.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Request metrics, recorded by Metrics.
var (
	RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests by method and status class.",
	}, []string{"method", "status"})

	RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time to response head by method.",
		Buckets:   LatencyBuckets,
	}, []string{"method"})

	RequestsInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "requests_in_flight",
		Help:      "Requests inside the chain.",
	})
)

// Upstream metrics, recorded by Upstream. Status is a class like "2xx" or
// "error" when no response arrived.
var (
	UpstreamRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Proxied requests by upstream status class.",
	}, []string{"status"})

	UpstreamLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "latency_seconds",
		Help:      "Upstream exchange latency.",
		Buckets:   LatencyBuckets,
	})
)

var (
	AuthRejectedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "rejected_total",
		Help:      "Requests rejected by authentication.",
	})

	RateLimitRejectedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})

	// AccessLogRecordsTotal is labelled "stored" or "failed".
	AccessLogRecordsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "accesslog",
		Name:      "records_total",
		Help:      "Access log appends by result.",
	}, []string{"result"})

	AccessLogPrunedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "accesslog",
		Name:      "pruned_total",
		Help:      "Access log records removed by retention.",
	})
)

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
