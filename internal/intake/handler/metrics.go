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
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicpulse_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicpulse_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	receiptsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civicpulse_receipts_issued_total",
		Help: "Total receipts appended to the ledger.",
	})

	ledgerLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "civicpulse_ledger_length",
		Help: "Number of links in the receipt ledger.",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicpulse_verifications_total",
		Help: "Total receipt verifications by outcome.",
	}, []string{"result"})

	shortCodeCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civicpulse_shortcode_collisions_total",
		Help: "Short code draws that collided with an existing code.",
	})

	shortCodeExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civicpulse_shortcode_exhausted_total",
		Help: "Submissions rejected because every short code draw collided.",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicpulse_notifications_total",
		Help: "Total receipt notifications by delivery status.",
	}, []string{"status"})

	anchorCheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicpulse_anchor_checkpoints_total",
		Help: "Total external anchoring attempts by status.",
	}, []string{"status"})

	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicpulse_health_checks_total",
		Help: "Total periodic health probes by check and status.",
	}, []string{"check", "status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordReceiptIssued counts an appended receipt and updates the ledger gauge.
func RecordReceiptIssued(position int64) {
	receiptsIssuedTotal.Inc()
	SetLedgerLength(position)
}

// SetLedgerLength sets the ledger length gauge.
func SetLedgerLength(n int64) {
	ledgerLength.Set(float64(n))
}

// RecordVerification records a verification outcome.
func RecordVerification(ok bool) {
	verificationsTotal.WithLabelValues(outcome(ok, "ok", "fail")).Inc()
}

// RecordShortCodeCollision is wired as the allocator's collision hook.
func RecordShortCodeCollision() {
	shortCodeCollisionsTotal.Inc()
}

// RecordShortCodeExhausted records a submission lost to code-space pressure.
func RecordShortCodeExhausted() {
	shortCodeExhaustedTotal.Inc()
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(success bool) {
	notificationsTotal.WithLabelValues(outcome(success, "success", "failure")).Inc()
}

// RecordAnchor records an external anchoring attempt.
func RecordAnchor(success bool) {
	anchorCheckpointsTotal.WithLabelValues(outcome(success, "success", "failure")).Inc()
}

// RecordHealthCheck records a periodic health probe.
func RecordHealthCheck(check string, success bool) {
	healthChecksTotal.WithLabelValues(check, outcome(success, "success", "failure")).Inc()
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
