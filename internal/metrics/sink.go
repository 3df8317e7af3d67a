package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sinkOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "sink",
		Name:      "operations_total",
		Help:      "Count of storage sink operations.",
	}, []string{"sink", "operation", "status"})
	sinkOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "sink",
		Name:      "operation_duration_seconds",
		Help:      "Duration of storage sink operations.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"sink", "operation", "status"})
)

// Sink tracks metrics for one storage sink.
type Sink struct {
	name string
}

// NewSink creates a metrics collector for the named sink.
func NewSink(name string) *Sink {
	if name == "" {
		name = "unknown"
	}
	return &Sink{name: name}
}

// Observe records duration and status of a sink operation.
func (m Sink) Observe(operation string, err error, started time.Time) {
	status := statusOf(err)
	sinkOperationsTotal.WithLabelValues(m.name, operation, status).Inc()
	sinkOperationDuration.WithLabelValues(m.name, operation, status).Observe(time.Since(started).Seconds())
}
