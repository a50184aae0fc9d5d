package stats_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openbuildnet/obncore/stats"
	"github.com/openbuildnet/obncore/wire"
)

func TestObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := stats.NewMetrics(reg)

	m.ObserveTick(5 * time.Millisecond)
	m.ObserveAck("A", wire.TypeUpdateY, time.Millisecond)
	m.ObserveLateAck("B")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sawTicks bool
	for _, f := range families {
		if f.GetName() == "obn_gc_ticks_total" {
			sawTicks = true
			if got := f.Metric[0].Counter.GetValue(); got != 1 {
				t.Errorf("obn_gc_ticks_total = %v, want 1", got)
			}
		}
	}
	if !sawTicks {
		t.Fatal("obn_gc_ticks_total not registered")
	}
}
