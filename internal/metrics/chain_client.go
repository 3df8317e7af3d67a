package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "chain_client",
		Name:      "operations_total",
		Help:      "Count of node RPC operations.",
	}, []string{"operation", "chain", "status"})
	chainRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "chain_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of node RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "chain", "status"})
	chainRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "chain_client",
		Name:      "retries_total",
		Help:      "Count of retried node RPC attempts.",
	}, []string{"operation", "chain"})
)

// ChainClient tracks metrics for RPC calls to the chain node.
type ChainClient struct {
	chain string
}

// NewChainClient constructs a metrics collector for RPC calls.
func NewChainClient(chain string) *ChainClient {
	if chain == "" {
		chain = "unknown"
	}
	return &ChainClient{chain: chain}
}

// Observe records a single RPC call outcome and duration.
func (m ChainClient) Observe(operation string, err error, started time.Time) {
	status := statusOf(err)
	chainRequestsTotal.WithLabelValues(operation, m.chain, status).Inc()
	chainRequestDuration.WithLabelValues(operation, m.chain, status).Observe(time.Since(started).Seconds())
}

// ObserveRetry records a retried attempt.
func (m ChainClient) ObserveRetry(operation string) {
	chainRetriesTotal.WithLabelValues(operation, m.chain).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
