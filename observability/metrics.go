package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records activity on the settlement engines. Outcomes are
// segmented by operation so the monitoring pipeline can alert on rejection
// spikes without parsing logs.
type SettlementMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	amounts    *prometheus.HistogramVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *SettlementMetrics

	programMetricsOnce sync.Once
	programRegistry    *SettlementMetrics
)

func newSettlementMetrics(subsystem string) *SettlementMetrics {
	m := &SettlementMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyvault",
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Total settlement operations segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyvault",
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total failed settlement operations segmented by operation.",
		}, []string{"op"}),
		amounts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bountyvault",
			Subsystem: subsystem,
			Name:      "settlement_amount",
			Help:      "Value moved per settlement operation in base token units.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
		}, []string{"op"}),
	}
	prometheus.MustRegister(m.operations, m.errors, m.amounts)
	return m
}

// EscrowMetrics returns the lazily-initialised registry for the bounty escrow
// engine.
func EscrowMetrics() *SettlementMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = newSettlementMetrics("escrow")
	})
	return escrowRegistry
}

// ProgramMetrics returns the lazily-initialised registry for the program
// escrow engine.
func ProgramMetrics() *SettlementMetrics {
	programMetricsOnce.Do(func() {
		programRegistry = newSettlementMetrics("program")
	})
	return programRegistry
}

// Observe records one operation and its outcome.
func (m *SettlementMetrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveAmount records the value moved by one successful settlement
// operation. Precision loss in the float conversion only affects bucket
// placement, never the settled amounts themselves.
func (m *SettlementMetrics) ObserveAmount(op string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.amounts.WithLabelValues(op).Observe(value)
}
