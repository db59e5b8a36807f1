// Package metrics exposes the client's live operational counters/histograms
// as Prometheus collectors, replacing the bespoke in-memory snapshot struct
// internal/monitoring/monitoring_system.go hand-rolled for the same
// "live metrics" role with the idiomatic Go way of doing it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector this client registers. The *Metrics that
// NewNop returns is safe to use everywhere; its collectors are registered
// nowhere, so what they record is never exported.
type Metrics struct {
	PushReconnects      prometheus.Counter
	PushConnectionState prometheus.Gauge
	FetchCycleDuration  *prometheus.HistogramVec
	FetchCycleErrors    *prometheus.CounterVec
	DispatchQueueDepth  prometheus.Gauge
	DispatchHandlerTime prometheus.Histogram
	DispatchPanics      prometheus.Counter
}

// New registers every collector under reg and returns the bundle. Passing
// prometheus.NewRegistry() keeps this client's metrics isolated from the
// global default registry, the way a library embedded in someone else's
// service should behave.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PushReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linepy",
			Subsystem: "push",
			Name:      "reconnects_total",
			Help:      "Number of times the push session has reconnected after an error.",
		}),
		PushConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linepy",
			Subsystem: "push",
			Name:      "connected",
			Help:      "1 while the push session's stream is established, 0 otherwise.",
		}),
		FetchCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linepy",
			Subsystem: "fetch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one Event Fetcher FetchCycle call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		FetchCycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linepy",
			Subsystem: "fetch",
			Name:      "cycle_errors_total",
			Help:      "Count of FetchCycle errors by kind (rate_limit, transient, state).",
		}, []string{"kind"}),
		DispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linepy",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Number of events currently buffered in the dispatcher's queue.",
		}),
		DispatchHandlerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linepy",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Duration of one dispatcher Handler invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		DispatchPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linepy",
			Subsystem: "dispatch",
			Name:      "handler_panics_total",
			Help:      "Count of dispatcher Handler invocations that panicked and were recovered.",
		}),
	}

	reg.MustRegister(
		m.PushReconnects,
		m.PushConnectionState,
		m.FetchCycleDuration,
		m.FetchCycleErrors,
		m.DispatchQueueDepth,
		m.DispatchHandlerTime,
		m.DispatchPanics,
	)
	return m
}

// NewNop returns a Metrics backed by unregistered collectors, safe to use
// in tests or by callers that don't want Prometheus wiring at all.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
