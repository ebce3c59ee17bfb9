// Package metrics defines the Prometheus instruments of the engine.
//
// Instruments live in a Metrics value instead of package globals so several
// engines (and tests) can run in one process. Pass a prometheus.Registerer
// to New to expose them; New(nil) returns unregistered instruments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "incr"

// Metrics holds every instrument.
type Metrics struct {
	// ForkComputations counts upstream polls of a fork node.
	// Labels: node
	ForkComputations *prometheus.CounterVec

	// ForkDistributions counts batches handed to non-computing consumers.
	// Labels: node
	ForkDistributions *prometheus.CounterVec

	// ForkConsumers tracks live consumers per fork node.
	// Labels: node
	ForkConsumers *prometheus.GaugeVec

	// WatchConsumers tracks registered watch group consumers per column.
	// Labels: column
	WatchConsumers *prometheus.GaugeVec

	// WatchAttachments counts lazy attaches of a watch group to a column.
	// Labels: column
	WatchAttachments *prometheus.CounterVec

	// DriverCycles counts completed driver cycles.
	DriverCycles prometheus.Counter

	// DriverCycleSeconds measures the duration of one driver cycle.
	DriverCycleSeconds prometheus.Histogram
}

// New creates the instruments and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ForkComputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fork",
			Name:      "computations_total",
			Help:      "Upstream polls performed by fork nodes",
		}, []string{"node"}),
		ForkDistributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fork",
			Name:      "distributions_total",
			Help:      "Batches distributed to fork consumers",
		}, []string{"node"}),
		ForkConsumers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fork",
			Name:      "consumers",
			Help:      "Live consumers per fork node",
		}, []string{"node"}),
		WatchConsumers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "consumers",
			Help:      "Registered watch group consumers per column",
		}, []string{"column"}),
		WatchAttachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "attachments_total",
			Help:      "Watch group attaches to a column",
		}, []string{"column"}),
		DriverCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "cycles_total",
			Help:      "Completed driver cycles",
		}),
		DriverCycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "cycle_seconds",
			Help:      "Driver cycle duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ForkComputations,
			m.ForkDistributions,
			m.ForkConsumers,
			m.WatchConsumers,
			m.WatchAttachments,
			m.DriverCycles,
			m.DriverCycleSeconds,
		)
	}
	return m
}

// Or returns m, or unregistered instruments when m is nil.
func Or(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
