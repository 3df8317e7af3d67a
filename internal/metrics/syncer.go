package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "cycles_total",
		Help:      "Count of synchronization cycles by outcome.",
	}, []string{"chain", "outcome"})
	syncCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of synchronization cycles.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"chain", "outcome"})
	syncBlockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "blocks_total",
		Help:      "Count of processed heights.",
	}, []string{"chain", "status"})
	syncBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "block_duration_seconds",
		Help:      "Duration of fetch, decode and store of one height.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "status"})
	syncBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "batch_size",
		Help:      "Number of heights fetched per cycle.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"chain"})
	syncCommittedHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "committed_height",
		Help:      "Highest contiguously committed height.",
	}, []string{"chain"})
	syncChainHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "chain_height",
		Help:      "Latest chain height observed.",
	}, []string{"chain"})
	syncForksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "forks_total",
		Help:      "Count of detected forks.",
	}, []string{"chain"})
	syncRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "rollbacks_total",
		Help:      "Count of rollbacks by status.",
	}, []string{"chain", "status"})
	syncStuckHeights = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blockexport",
		Subsystem: "syncer",
		Name:      "stuck_heights",
		Help:      "Number of heights that exhausted their retries.",
	}, []string{"chain"})
)

// Syncer tracks metrics for the synchronization loop.
type Syncer struct {
	chain string
}

// NewSyncer constructs a Syncer collector.
func NewSyncer(chain string) *Syncer {
	if chain == "" {
		chain = "unknown"
	}
	return &Syncer{chain: chain}
}

// ObserveCycle records one loop iteration with its outcome label.
func (m Syncer) ObserveCycle(outcome string, started time.Time) {
	syncCycleTotal.WithLabelValues(m.chain, outcome).Inc()
	syncCycleDuration.WithLabelValues(m.chain, outcome).Observe(time.Since(started).Seconds())
}

// ObserveBlock records processing of a single height.
func (m Syncer) ObserveBlock(err error, started time.Time) {
	status := statusOf(err)
	syncBlockTotal.WithLabelValues(m.chain, status).Inc()
	syncBlockDuration.WithLabelValues(m.chain, status).Observe(time.Since(started).Seconds())
}

// ObserveBatch records the number of heights fetched in a cycle.
func (m Syncer) ObserveBatch(heights int) {
	syncBatchSize.WithLabelValues(m.chain).Observe(float64(heights))
}

// SetCommittedHeight updates the committed cursor gauge.
func (m Syncer) SetCommittedHeight(height uint64) {
	syncCommittedHeight.WithLabelValues(m.chain).Set(float64(height))
}

// SetChainHeight updates the chain tip gauge.
func (m Syncer) SetChainHeight(height uint64) {
	syncChainHeight.WithLabelValues(m.chain).Set(float64(height))
}

// ObserveFork counts a detected fork.
func (m Syncer) ObserveFork() {
	syncForksTotal.WithLabelValues(m.chain).Inc()
}

// ObserveRollback counts a rollback by outcome.
func (m Syncer) ObserveRollback(err error) {
	syncRollbacksTotal.WithLabelValues(m.chain, statusOf(err)).Inc()
}

// SetStuckHeights updates the number of heights in the stuck state.
func (m Syncer) SetStuckHeights(n int) {
	syncStuckHeights.WithLabelValues(m.chain).Set(float64(n))
}
