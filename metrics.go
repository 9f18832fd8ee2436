package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	chatSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_chat_submissions_total",
			Help: "Chat submissions by outcome (answered, failed, rejected).",
		},
		[]string{"outcome"},
	)

	chatProcessDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbchat_chat_process_duration_seconds",
			Help:    "End-to-end latency of one question/answer cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, chatSubmissionsTotal, chatProcessDurationSeconds)
}

func chatOutcome(outcome string) {
	chatSubmissionsTotal.WithLabelValues(outcome).Inc()
}

func chatDuration(d time.Duration) {
	chatProcessDurationSeconds.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}
