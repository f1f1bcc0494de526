// Package metrics provides Prometheus instrumentation for the engine.
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
	// OrdersTotal counts orders by side and outcome (executed/rejected).
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_orders_total",
		Help: "Total number of order placements",
	}, []string{"side", "outcome"})

	// QuizSubmissions counts quiz submissions by result.
	QuizSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_quiz_submissions_total",
		Help: "Total quiz submissions",
	}, []string{"result"})

	// LessonsCompleted counts lesson completions.
	LessonsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockquest_lessons_completed_total",
		Help: "Total lessons completed",
	})

	// AchievementsUnlocked counts achievement unlocks.
	AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockquest_achievements_unlocked_total",
		Help: "Total achievements unlocked",
	})

	// InsightRequests counts insight generations by source (ai/fallback).
	InsightRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_insight_requests_total",
		Help: "Insight generations by source",
	}, []string{"source"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockquest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockquest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockquest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small
		// enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
