// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal         *prometheus.CounterVec
	upstreamRequestDuration       *prometheus.HistogramVec
	upstreamRetriesTotal          *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	recordSavesTotal              *prometheus.CounterVec
	recordBytes                   prometheus.Gauge
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_upstream_requests_total",
				Help: "Catalog API attempts, labeled by site and status code (0 for transport errors).",
			},
			[]string{"site", "code"},
		)

		upstreamRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_upstream_request_duration_seconds",
				Help:    "Catalog API attempt latency, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		upstreamRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_upstream_retries_total",
				Help: "Retries scheduled after a transient upstream failure, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		recordSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_record_saves_total",
				Help: "Record document writes, labeled by result.",
			},
			[]string{"result"},
		)

		recordBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_record_bytes",
				Help: "Size of the last record document written.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one attempt against the catalog API.
func ObserveUpstream(rawURL string, code int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	upstreamRequestsTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	upstreamRequestDuration.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for the URL's host.
func ObserveRetry(rawURL string) {
	Init()
	upstreamRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRecordSave records a record document write and its size.
func ObserveRecordSave(err error, size int) {
	Init()
	if err != nil {
		recordSavesTotal.WithLabelValues("error").Inc()
		return
	}
	recordSavesTotal.WithLabelValues("success").Inc()
	recordBytes.Set(float64(size))
}

// ObserveHTTPRequest increments the ops HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
