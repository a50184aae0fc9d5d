// Package stats exposes the GC scheduler's timing as Prometheus metrics
// (spec.md §2 GC scheduler share, observability left implicit in the
// distilled spec but carried here as an ambient concern the way the
// teacher's own stats package always is). Metric names follow the
// teacher's naming convention (stats/common_statsd.go: a `.n` suffix for
// counters, `.ns`/`.size` for latency/size gauges) translated into
// Prometheus's underscore-snake-case style.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openbuildnet/obncore/wire"
)

// Metrics implements gc.Observer over a Prometheus registry.
type Metrics struct {
	ticksTotal    prometheus.Counter
	tickDuration  prometheus.Histogram
	ackDuration   *prometheus.HistogramVec
	lateAcksTotal *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obn_gc_ticks_total",
			Help: "Number of GC scheduler ticks completed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "obn_gc_tick_duration_seconds",
			Help:    "Wall-clock duration of one GC tick (T_next computation through advance).",
			Buckets: prometheus.DefBuckets,
		}),
		ackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obn_gc_ack_duration_seconds",
			Help:    "Wall-clock duration from UPDATE_Y/X dispatch to ACK receipt, per node.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node", "msg_type"}),
		lateAcksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obn_gc_late_acks_total",
			Help: "Ack-timeout occurrences per node (node-departure-tolerance observability counter; does not change the fatal escalation).",
		}, []string{"node"}),
	}
	reg.MustRegister(m.ticksTotal, m.tickDuration, m.ackDuration, m.lateAcksTotal)
	return m
}

func (m *Metrics) ObserveTick(d time.Duration) {
	m.ticksTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveAck(node string, msgType wire.Type, d time.Duration) {
	m.ackDuration.WithLabelValues(node, msgType.String()).Observe(d.Seconds())
}

func (m *Metrics) ObserveLateAck(node string) {
	m.lateAcksTotal.WithLabelValues(node).Inc()
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
