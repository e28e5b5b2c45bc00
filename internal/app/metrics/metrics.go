// Package metrics defines the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arzwatch",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arzwatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arzwatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	scrapeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arzwatch",
			Subsystem: "scrape",
			Name:      "runs_total",
			Help:      "Total number of scrape runs per source and category.",
		},
		[]string{"source", "category", "status"},
	)

	scrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arzwatch",
			Subsystem: "scrape",
			Name:      "run_duration_seconds",
			Help:      "Duration of scrape runs including page rendering.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"source", "category"},
	)

	scrapeRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arzwatch",
			Subsystem: "scrape",
			Name:      "rows_total",
			Help:      "Row outcomes per extraction pass.",
		},
		[]string{"source", "category", "result"},
	)

	quotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arzwatch",
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Admission rejections by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		scrapeRuns,
		scrapeDuration,
		scrapeRows,
		quotaRejections,
	)
}

// Handler exposes the registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveScrape records the outcome and duration of one scrape run.
func ObserveScrape(source, category, status string, elapsed time.Duration) {
	scrapeRuns.WithLabelValues(source, category, status).Inc()
	scrapeDuration.WithLabelValues(source, category).Observe(elapsed.Seconds())
}

// CountRows records the row outcomes of one extraction pass.
func CountRows(source, category string, parsed, skipped, irrelevant, duplicate int) {
	scrapeRows.WithLabelValues(source, category, "parsed").Add(float64(parsed))
	scrapeRows.WithLabelValues(source, category, "skipped").Add(float64(skipped))
	scrapeRows.WithLabelValues(source, category, "irrelevant").Add(float64(irrelevant))
	scrapeRows.WithLabelValues(source, category, "duplicate").Add(float64(duplicate))
}

// CountQuotaRejection records one admission rejection.
func CountQuotaRejection(reason string) {
	quotaRejections.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one handled HTTP request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// TrackInFlight bounds a request's lifetime for the in-flight gauge.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}
