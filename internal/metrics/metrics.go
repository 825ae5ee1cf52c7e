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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meza_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meza_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	challengeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meza_challenge_transitions_total",
			Help: "Total challenge state transitions by target state",
		},
		[]string{"to"},
	)

	penaltyCharges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meza_penalty_charges_total",
			Help: "Total penalty charge attempts by outcome",
		},
		[]string{"outcome"},
	)

	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meza_push_deliveries_total",
			Help: "Total web push delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meza_expiry_sweep_duration_seconds",
			Help:    "Expiry sweep run duration",
			Buckets: []float64{.01, .05, .1, .5, 1, 5},
		},
	)
)

// RecordTransition counts a successful challenge transition.
func RecordTransition(to string) {
	challengeTransitions.WithLabelValues(to).Inc()
}

// RecordCharge counts a penalty charge attempt ("succeeded" or "failed").
func RecordCharge(outcome string) {
	penaltyCharges.WithLabelValues(outcome).Inc()
}

// RecordPush counts a push delivery attempt ("sent", "failed" or "gone").
func RecordPush(outcome string) {
	pushDeliveries.WithLabelValues(outcome).Inc()
}

// ObserveSweep records the duration of one expiry sweep run.
func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
