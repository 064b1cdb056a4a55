package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics records engine operations per entity and transactions
// per outcome.
type OperationMetrics struct {
	duration     *prometheus.HistogramVec
	success      *prometheus.CounterVec
	failure      *prometheus.CounterVec
	transactions *prometheus.CounterVec
}

// NewOperationMetrics registers the engine metrics on the provided registerer.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopclient_operation_duration_seconds",
		Help:    "Duration of engine operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclient_operation_success_total",
		Help: "Successful engine operations.",
	}, []string{"entity", "operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclient_operation_failure_total",
		Help: "Failed engine operations by error code.",
	}, []string{"entity", "operation", "code"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclient_transactions_total",
		Help: "Finished transactions by mode and outcome.",
	}, []string{"mode", "outcome"})
	reg.MustRegister(duration, success, failure, transactions)
	return &OperationMetrics{
		duration:     duration,
		success:      success,
		failure:      failure,
		transactions: transactions,
	}
}

// ObserveDuration records how long an operation on entity took.
func (m *OperationMetrics) ObserveDuration(entity, operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(entity), normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the operation.
func (m *OperationMetrics) IncSuccess(entity, operation string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(entity), normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the operation and code.
func (m *OperationMetrics) IncFailure(entity, operation, code string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(entity), normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// IncTransaction counts a finished transaction. outcome is commit, rollback
// or timeout.
func (m *OperationMetrics) IncTransaction(mode, outcome string) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.WithLabelValues(normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
