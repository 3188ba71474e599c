// Package metrics exposes Prometheus collectors for the i10 target,
// following the instrumentation style of the retrieved m-lab/tcp-info and
// runZeroInc sockstats/conniver packages (registry-owned counters and
// histograms, a Collector wired into an HTTP handler) rather than the
// teacher's hand-rolled atomic-counter Metrics type.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the core updates during normal
// operation. Construct one with New and register it with a registry (or
// use NewDefault to register with prometheus.DefaultRegisterer).
type Metrics struct {
	PDUsReceived  *prometheus.CounterVec // by PDU type
	PDUsSent      *prometheus.CounterVec // by PDU type
	CaravanFlush  *prometheus.CounterVec // by caravan class (large/small)
	CaravanBytes  *prometheus.HistogramVec
	DigestErrors  *prometheus.CounterVec // by digest kind (header/data)
	QueuesLive    prometheus.Gauge
	QueueState    *prometheus.GaugeVec // 1 for the current state, per queue
	SlotsInUse    *prometheus.GaugeVec
}

// New creates a Metrics bundle and registers its collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PDUsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "i10_target",
			Name:      "pdus_received_total",
			Help:      "PDUs received from initiators, by type.",
		}, []string{"type"}),
		PDUsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "i10_target",
			Name:      "pdus_sent_total",
			Help:      "PDUs emitted to initiators, by type.",
		}, []string{"type"}),
		CaravanFlush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "i10_target",
			Name:      "caravan_flushes_total",
			Help:      "Caravan flush operations, by caravan class.",
		}, []string{"class"}),
		CaravanBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "i10_target",
			Name:      "caravan_flush_bytes",
			Help:      "Bytes carried by a single caravan flush, by class.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"class"}),
		DigestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "i10_target",
			Name:      "digest_errors_total",
			Help:      "CRC32C digest mismatches, by digest kind.",
		}, []string{"kind"}),
		QueuesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "i10_target",
			Name:      "queues_live",
			Help:      "Number of accepted queues not yet torn down.",
		}),
		QueueState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "i10_target",
			Name:      "queue_state",
			Help:      "1 if the queue is currently in this state.",
		}, []string{"qid", "state"}),
		SlotsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "i10_target",
			Name:      "slots_in_use",
			Help:      "Command slots not on the free list, per queue.",
		}, []string{"qid"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PDUsReceived, m.PDUsSent, m.CaravanFlush, m.CaravanBytes,
			m.DigestErrors, m.QueuesLive, m.QueueState, m.SlotsInUse,
		)
	}
	return m
}

// NewDefault registers with the global Prometheus registry, the common
// case for a single-process binary.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// NoOp returns a Metrics bundle backed by unregistered collectors, safe
// to use in tests that don't care about a shared registry.
func NoOp() *Metrics {
	return New(nil)
}
