// Package metrics exposes the engine's Prometheus instrumentation: batch and
// operation counters, throttle capacity gauges, cascade-skip counters, and
// checkpoint-save counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the executor and throttle report into.
type Registry struct {
	BatchesStarted   prometheus.Counter
	BatchesCompleted prometheus.Counter
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	ThrottleCapacity prometheus.Gauge
	ThrottleInFlight prometheus.Gauge
	CascadeSkips     prometheus.Counter
	CheckpointSaves  prometheus.Counter
}

// New registers and returns a Registry on reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamreconciler_batches_started_total",
			Help: "Number of execution batches started.",
		}),
		BatchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamreconciler_batches_completed_total",
			Help: "Number of execution batches completed.",
		}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bamreconciler_operations_total",
			Help: "Number of operations by object type and outcome status.",
		}, []string{"object_type", "operation_type", "status"}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bamreconciler_operation_latency_seconds",
			Help:    "Latency of individual IPAM operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"object_type", "operation_type"}),
		ThrottleCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bamreconciler_throttle_capacity",
			Help: "Current adaptive throttle capacity.",
		}),
		ThrottleInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bamreconciler_throttle_in_flight",
			Help: "Current in-flight operation count.",
		}),
		CascadeSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamreconciler_cascade_skips_total",
			Help: "Number of operations skipped due to cascading failure.",
		}),
		CheckpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamreconciler_checkpoint_saves_total",
			Help: "Number of checkpoints persisted.",
		}),
	}
	reg.MustRegister(
		r.BatchesStarted, r.BatchesCompleted, r.OperationsTotal, r.OperationLatency,
		r.ThrottleCapacity, r.ThrottleInFlight, r.CascadeSkips, r.CheckpointSaves,
	)
	return r
}
