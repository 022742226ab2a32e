// Package metrics exposes Prometheus collectors for the HTTP layer and the
// entry submission workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/watchlog/watchlog/pkg/errcodes"
)

// Submission outcomes.
const (
	OutcomeCreated          = "created"
	OutcomeValidationFailed = "validation_failed"
	OutcomeUploadAborted    = "upload_aborted"
	OutcomeWriteFailed      = "write_failed"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchlog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "watchlog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchlog",
			Subsystem: "entries",
			Name:      "submissions_total",
			Help:      "Entry submissions by outcome.",
		},
		[]string{"outcome"},
	)

	imageUploadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchlog",
			Subsystem: "entries",
			Name:      "image_upload_failures_total",
			Help:      "Image uploads that failed during entry submission.",
		},
	)

	unresolvedRelations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchlog",
			Subsystem: "entries",
			Name:      "unresolved_relations_total",
			Help:      "Related entry titles that didn't match an existing entry.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		submissions,
		imageUploadFailures,
		unresolvedRelations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations keyed by the matched route
// so that path parameters don't explode label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				status = errorStatus(err)
			}

			httpRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// errorStatus is the status the error handler will respond with.
func errorStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	var e *errcodes.Error
	if errors.As(err, &e) {
		return e.HTTPCode
	}
	return http.StatusInternalServerError
}

// RecordSubmission counts one finished submission.
func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func RecordImageUploadFailure() {
	imageUploadFailures.Inc()
}

func RecordUnresolvedRelation() {
	unresolvedRelations.Inc()
}
