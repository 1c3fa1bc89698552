package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LabelMethod = "method"
	LabelPath   = "path"
	LabelStatus = "status"
	LabelReason = "reason"
)

// Rejection reasons for LoanIssueRejections.
const (
	ReasonNotFound   = "not_found"
	ReasonNoStock    = "no_stock"
	ReasonValidation = "validation"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelMethod, LabelPath},
	)
)

// Ledger metrics
var (
	LoansIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_loans_issued_total",
			Help: "Total number of loans issued",
		},
	)

	LoansReturned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_loans_returned_total",
			Help: "Total number of loans returned",
		},
	)

	LoanIssueRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_issue_rejections_total",
			Help: "Issue requests rejected, by reason",
		},
		[]string{LabelReason},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_event_publish_failures_total",
			Help: "Ledger events that could not be published",
		},
	)
)

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
