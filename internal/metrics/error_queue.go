package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorQueueOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "error_queue",
		Name:      "operations_total",
		Help:      "Count of error queue operations.",
	}, []string{"backend", "operation", "status"})
	errorQueueOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "error_queue",
		Name:      "operation_duration_seconds",
		Help:      "Duration of error queue operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "operation", "status"})
)

// ErrorQueue tracks metrics for the failed-block queue backend.
type ErrorQueue struct {
	backend string
}

// NewErrorQueue creates a metrics collector for the given backend.
func NewErrorQueue(backend string) *ErrorQueue {
	return &ErrorQueue{backend: backend}
}

// Observe records duration and status of a queue operation.
func (m ErrorQueue) Observe(operation string, err error, started time.Time) {
	status := statusOf(err)
	errorQueueOperationsTotal.WithLabelValues(m.backend, operation, status).Inc()
	errorQueueOperationDuration.WithLabelValues(m.backend, operation, status).Observe(time.Since(started).Seconds())
}
