package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PushReconnects.Inc()
	m.PushConnectionState.Set(1)
	m.FetchCycleDuration.WithLabelValues("ok").Observe(0.01)
	m.FetchCycleErrors.WithLabelValues("rate_limit").Inc()
	m.DispatchQueueDepth.Set(3)
	m.DispatchHandlerTime.Observe(0.001)
	m.DispatchPanics.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 7 {
		t.Fatalf("expected 7 registered metric families, got %d", len(families))
	}
}

func TestNewNopIsUsableStandalone(t *testing.T) {
	m := NewNop()
	m.PushReconnects.Inc() // must not panic
}
