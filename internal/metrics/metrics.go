// Package metrics holds the Prometheus collectors shared by the letters API
// and the overlay renderer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letterbox_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"service", "method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "letterbox_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "route"},
	)

	LettersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "letterbox_letters_created_total",
			Help: "Letters accepted for delivery",
		},
	)

	LetterDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letterbox_letter_deliveries_total",
			Help: "Deliver calls by outcome",
		},
		[]string{"outcome"}, // delivered, not_ready, not_found
	)

	OverlayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letterbox_overlay_requests_total",
			Help: "Overlay fetches by cache result",
		},
		[]string{"result"}, // hit, miss, empty
	)

	RenderJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letterbox_render_jobs_total",
			Help: "Overlay render jobs by outcome",
		},
		[]string{"outcome"}, // rendered, skipped, failed
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "letterbox_render_duration_seconds",
			Help:    "Time spent rasterizing one overlay",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// RecordDelivery counts one deliver call.
func RecordDelivery(outcome string) {
	LetterDeliveries.WithLabelValues(outcome).Inc()
}

// RecordOverlay counts one overlay fetch.
func RecordOverlay(result string) {
	OverlayRequests.WithLabelValues(result).Inc()
}

// RecordRender counts one render job and its duration.
func RecordRender(outcome string, d time.Duration) {
	RenderJobs.WithLabelValues(outcome).Inc()
	if outcome == "rendered" {
		RenderDuration.Observe(d.Seconds())
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Instrument records request count and latency. route maps a request to a
// low-cardinality label such as "/letters/{id}".
func Instrument(service string, route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		label := route(r)
		HTTPRequestsTotal.WithLabelValues(service, r.Method, label, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(service, r.Method, label).Observe(time.Since(start).Seconds())
	})
}
