package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"mpcbridge/core/events"
	"mpcbridge/core/host"
)

// BridgeMetrics tracks host execution and settlement outcomes. It is both a
// host.Observer and an events.Emitter.
type BridgeMetrics struct {
	receipts    *prometheus.CounterVec
	settlements *prometheus.CounterVec
	records     *prometheus.CounterVec
	pending     prometheus.Gauge
	parked      prometheus.Gauge
}

var (
	bridgeMetricsOnce sync.Once
	bridgeRegistry    *BridgeMetrics
)

// Bridge returns the process-wide bridge metrics registered with the default
// registry.
func Bridge() *BridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = NewBridgeMetrics(prometheus.DefaultRegisterer)
	})
	return bridgeRegistry
}

// NewBridgeMetrics builds the bridge collectors and registers them with reg.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "host",
			Name:      "receipts_total",
			Help:      "Executed receipts segmented by target, method, kind and status.",
		}, []string{"target", "method", "kind", "status"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "settlement",
			Name:      "transitions_total",
			Help:      "Settlement records segmented by record type and final state.",
		}, []string{"type", "state"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "events",
			Name:      "records_total",
			Help:      "Log records emitted segmented by contract namespace.",
		}, []string{"namespace"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "host",
			Name:      "pending_receipts",
			Help:      "Receipts queued or waiting on an outcome.",
		}),
		parked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "host",
			Name:      "parked_value",
			Help:      "Native value of failed transfers not yet reclaimed.",
		}),
	}
	reg.MustRegister(m.receipts, m.settlements, m.records, m.pending, m.parked)
	return m
}

// ObserveReceipt counts an executed receipt.
func (m *BridgeMetrics) ObserveReceipt(target, method, kind string, status host.Status) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(target, method, kind, strings.ToLower(status.String())).Inc()
}

// SetPending records the current backlog.
func (m *BridgeMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// SetParked records the native value held for unreclaimed transfers. Values
// beyond float64 precision are approximated.
func (m *BridgeMetrics) SetParked(amount *uint256.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.parked.Set(value)
}

// Emit counts log records. Records carrying a settlement state are also
// counted by state.
func (m *BridgeMetrics) Emit(evt events.Event) {
	if m == nil {
		return
	}
	log, ok := evt.(events.Log)
	if !ok {
		return
	}
	m.records.WithLabelValues(log.Record.Namespace()).Inc()
	if state := log.Attr("state"); state != "" {
		m.settlements.WithLabelValues(log.Record.Type, state).Inc()
	}
}
