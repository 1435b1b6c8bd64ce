// Package metrics exposes Prometheus collectors for the slot bot.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal           *prometheus.CounterVec
	apiRequestDurationSeconds  *prometheus.HistogramVec
	apiErrorsTotal             *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bbdc_api_requests_total",
				Help: "Total requests sent to the booking API, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bbdc_api_request_duration_seconds",
				Help:    "Histogram of booking API latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		apiErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bbdc_api_errors_total",
				Help: "Transport-level failures talking to the booking API, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bbdc_notifications_total",
				Help: "Chat notifications attempted, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bbdc_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// EndpointLabel reduces a request path to its last segment, e.g.
// "/booking/c3practical/listC3PracticalSlotReleased" -> "listC3PracticalSlotReleased".
func EndpointLabel(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "unknown"
	}
	return path
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records a completed booking API call.
func ObserveAPIRequest(path string, code int, duration time.Duration) {
	Init()
	endpoint := EndpointLabel(path)
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveAPIError records a booking API call that never produced a response.
func ObserveAPIError(path string) {
	Init()
	apiErrorsTotal.WithLabelValues(EndpointLabel(path)).Inc()
}

// ObserveNotification records a chat delivery attempt.
func ObserveNotification(kind string, err error) {
	Init()
	status := "sent"
	if err != nil {
		status = "error"
	}
	notificationsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
