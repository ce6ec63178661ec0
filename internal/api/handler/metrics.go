package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	clgrRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clgr_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	clgrRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clgr_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	clgrLedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clgr_ledger_entries_total",
		Help: "Total ledger entries appended, by ledger.",
	}, []string{"ledger"})

	clgrVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clgr_verifications_total",
		Help: "Total chain verification runs by outcome.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		clgrRequestsTotal.WithLabelValues(method, path, status).Inc()
		clgrRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppend records a ledger entry append for the given ledger.
func RecordAppend(ledgerName string) {
	clgrLedgerEntriesTotal.WithLabelValues(ledgerName).Inc()
}

// RecordVerification records the outcome of a verification run.
func RecordVerification(valid bool) {
	if valid {
		clgrVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		clgrVerificationsTotal.WithLabelValues("invalid").Inc()
	}
}
