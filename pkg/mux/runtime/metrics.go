package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for running peers.
//
// Metrics:
//   - paramux_slot_entries_total{role,slot} - set states entered
//   - paramux_deliveries_total{slot} - values copied out by a receiver
//   - paramux_resettles_total{slot} - change detection resettles
type Metrics struct {
	SlotEntries *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
	Resettles   *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which suits tests and one-off simulations.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SlotEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paramux",
				Name:      "slot_entries_total",
				Help:      "Total number of slot states entered",
			},
			[]string{"role", "slot"},
		),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paramux",
				Name:      "deliveries_total",
				Help:      "Total number of values delivered to the receiver",
			},
			[]string{"slot"},
		),
		Resettles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "paramux",
				Name:      "resettles_total",
				Help:      "Total number of change detection resettles",
			},
			[]string{"slot"},
		),
	}
}
