package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Count of alerts raised by the exporter.",
	}, []string{"kind"})
	alertsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blockexport",
		Subsystem: "alerts",
		Name:      "journal_dropped_total",
		Help:      "Count of alerts that could not be written to the journal.",
	})
)

// Alerts tracks raised and dropped alerts.
type Alerts struct{}

// NewAlerts creates an Alerts collector.
func NewAlerts() *Alerts {
	return &Alerts{}
}

// ObserveRaised counts an alert of the given kind.
func (Alerts) ObserveRaised(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

// ObserveDropped counts alerts lost by a failed journal flush.
func (Alerts) ObserveDropped(count int) {
	alertsDroppedTotal.Add(float64(count))
}
