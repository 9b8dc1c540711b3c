// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// OTPRequestsTotal counts code requests by outcome.
	OTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "otp_requests_total",
		Help:      "One-time code requests, labeled by result.",
	}, []string{"result"})

	// OTPVerificationsTotal counts code verifications by outcome.
	OTPVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "otp_verifications_total",
		Help:      "One-time code verifications, labeled by result.",
	}, []string{"result"})

	// IssuesCreatedTotal counts stored issues by type.
	IssuesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "issues_created_total",
		Help:      "Issues created, labeled by issue type.",
	}, []string{"type"})

	// IssueResolutionsTotal counts resolve attempts by outcome.
	IssueResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "issue_resolutions_total",
		Help:      "Resolve requests, labeled by result.",
	}, []string{"result"})

	// OrphanedBlobsTotal counts images stored without a matching issue row.
	OrphanedBlobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "orphaned_blobs_total",
		Help:      "Images written whose issue row could not be inserted.",
	})

	// OTPSweptTotal counts expired challenges removed by the sweeper.
	OTPSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "otp_swept_total",
		Help:      "Expired one-time code challenges deleted by the sweeper.",
	})

	// HTTPRequestsTotal counts served requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Name:      "http_requests_total",
		Help:      "HTTP requests, labeled by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDurationSeconds observes handler latency.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicreport",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP handler latency, labeled by method and route.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
)

// Register registers all collectors with the default registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			OTPRequestsTotal,
			OTPVerificationsTotal,
			IssuesCreatedTotal,
			IssueResolutionsTotal,
			OrphanedBlobsTotal,
			OTPSweptTotal,
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
		)
	})
}

// Middleware records request counts and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				HTTPRequestDurationSeconds.WithLabelValues(c.Request().Method, route(c)).Observe(v)
			}))
			err := next(c)
			timer.ObserveDuration()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}
			HTTPRequestsTotal.WithLabelValues(c.Request().Method, route(c), strconv.Itoa(status)).Inc()
			return err
		}
	}
}

func route(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
