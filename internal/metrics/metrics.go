// Package metrics defines the Prometheus collectors of the admin auth service.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/and161185/cms-admin/internal/errs"
)

// Outcome labels for auth operations.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeBadRequest   = "bad_request"
	OutcomeUnauthorized = "unauthorized"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	AuthOps      *prometheus.CounterVec
	AuthDuration *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_admin_auth_operations_total",
				Help: "Total number of admin auth operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		AuthDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cms_admin_auth_operation_duration_seconds",
				Help:    "Admin auth operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_admin_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
	}
	reg.MustRegister(m.AuthOps, m.AuthDuration, m.HTTPRequests)
	return m
}

// Outcome maps a service error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errs.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, errs.ErrBadRequest):
		return OutcomeBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, errs.ErrAlreadyExists):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

// RecordAuth counts one auth operation and observes its duration.
func (m *Metrics) RecordAuth(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.AuthOps.WithLabelValues(operation, Outcome(err)).Inc()
	m.AuthDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHTTP counts one served request.
func (m *Metrics) RecordHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
