// Package metrics exposes Prometheus instrumentation for the defense
// daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the defense daemon
type Metrics struct {
	CyclesTotal         prometheus.Counter
	CycleErrorsTotal    prometheus.Counter
	ThreatsTotal        prometheus.Counter
	ActuationsTotal     prometheus.Counter
	UploadFailuresTotal prometheus.Counter
	FallbackSweepsTotal prometheus.Counter
	CycleDuration       prometheus.Histogram
	DeterrentActive     prometheus.Gauge
}

// New creates a Metrics instance registered on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_cycles_total",
			Help: "Total number of defense cycles started",
		}),
		CycleErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_cycle_errors_total",
			Help: "Total number of defense cycles that ended in an error",
		}),
		ThreatsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_threats_total",
			Help: "Total number of confirmed predator incidents",
		}),
		ActuationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_sprinkler_activations_total",
			Help: "Total number of completed sprinkler activations",
		}),
		UploadFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_upload_failures_total",
			Help: "Total number of sample uploads that failed or were unparseable",
		}),
		FallbackSweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "defense_fallback_sweeps_total",
			Help: "Total number of sweeps served from the stock image library",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "defense_cycle_duration_seconds",
			Help:    "Duration of a full defense cycle in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		DeterrentActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "defense_deterrent_active",
			Help: "Whether the sprinkler deterrent is currently on (1) or off (0)",
		}),
	}
}

// SetDeterrentActive records the sprinkler state as a 0/1 gauge
func (m *Metrics) SetDeterrentActive(on bool) {
	if on {
		m.DeterrentActive.Set(1)
	} else {
		m.DeterrentActive.Set(0)
	}
}
