// Package metrics exposes Prometheus instrumentation for the connection layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quarry"

// Metrics holds the collectors updated by the listener, connection readers
// and the dispatch loop. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	packetsDecoded      *prometheus.CounterVec
	packetsSent         *prometheus.CounterVec
	decodeErrors        *prometheus.CounterVec
	writeFailures       prometheus.Counter
	dispatchDuration    prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted client connections",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently registered with the dispatcher",
		}),
		packetsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_decoded_total",
			Help:      "Total number of inbound packets decoded",
		}, []string{"phase", "packet"}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total number of outbound packets written",
		}, []string{"packet"}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Connections ended by a read or decode error",
		}, []string{"reason"}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Outbound writes that failed and removed a connection",
		}),
		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one inbound packet",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}
}

func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// SetActive records the size of the connection table.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(n))
}

func (m *Metrics) PacketDecoded(phase, packet string) {
	if m == nil {
		return
	}
	m.packetsDecoded.WithLabelValues(phase, packet).Inc()
}

func (m *Metrics) PacketSent(packet string) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(packet).Inc()
}

func (m *Metrics) DecodeError(reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) WriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

// ObserveDispatch records how long handling a packet took since start.
func (m *Metrics) ObserveDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(time.Since(start).Seconds())
}
