// Package observability provides plugins that turn resolver events into
// Prometheus metrics and structured audit records.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/ident"
	"github.com/xraph/ident/plugin"
	"github.com/xraph/ident/principal"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Metrics)(nil)
	_ plugin.OperationCompleted = (*Metrics)(nil)
)

// Metrics counts resolver operations by kind, operation and outcome, and
// records their latency.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the ident collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ident_operations_total",
			Help: "Identity resolver operations by outcome",
		}, []string{"kind", "op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ident_operation_duration_seconds",
			Help:    "Time spent in identity resolver operations",
			Buckets: prometheus.ExponentialBucketsRange(0.0001, 2, 20),
		}, []string{"kind", "op"}),
	}
}

// Name implements plugin.Plugin.
func (m *Metrics) Name() string { return "metrics" }

// OnOperationCompleted implements plugin.OperationCompleted.
func (m *Metrics) OnOperationCompleted(_ context.Context, kind principal.Kind, op string, elapsed time.Duration, err error) error {
	m.operations.WithLabelValues(string(kind), op, Outcome(err)).Inc()
	m.duration.WithLabelValues(string(kind), op).Observe(elapsed.Seconds())
	return nil
}

// Outcome maps an operation result to its metric label.
func Outcome(err error) string {
	switch ident.ClassOf(err) {
	case nil:
		return "ok"
	case ident.ErrNotFound:
		return "not_found"
	case ident.ErrConflict:
		return "conflict"
	case ident.ErrValidation:
		return "validation"
	default:
		return "storage"
	}
}
