// Package observability holds the process-wide Prometheus collectors and the
// helpers used to record into them.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream WMS calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "status"},
	)

	sourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wms_source_requests_total",
			Help: "WMS source requests by request type and outcome.",
		},
		[]string{"source", "request", "outcome"},
	)

	responseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wms_response_bytes",
			Help:    "Size of upstream WMS response bodies.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB to 16MiB
		},
		[]string{"source", "request"},
	)

	configErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wms_config_errors_total",
			Help: "Configuration errors recorded while loading sources.",
		},
		[]string{"source", "kind"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		sourceRequestsTotal,
		responseBytes,
		configErrorsTotal,
	}
}

// Init registers the collectors on reg (the default registerer when nil).
// With on=false nothing is registered and observations are dropped.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if !on {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func Enabled() bool { return enabled.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveUpstreamLatency records one upstream call; status is 0 when no
// response was received.
func ObserveUpstreamLatency(upstream string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	upstreamLatencySeconds.WithLabelValues(upstream, st).Observe(durationSeconds)
}

// ObserveSourceRequest counts a GetMap/GetFeatureInfo call against a source.
// outcome is "ok" or an error kind.
func ObserveSourceRequest(source, request, outcome string, bytes int) {
	if !enabled.Load() {
		return
	}
	sourceRequestsTotal.WithLabelValues(source, request, outcome).Inc()
	if bytes > 0 {
		responseBytes.WithLabelValues(source, request).Observe(float64(bytes))
	}
}

func IncConfigError(source, kind string) {
	if !enabled.Load() {
		return
	}
	configErrorsTotal.WithLabelValues(source, kind).Inc()
}
