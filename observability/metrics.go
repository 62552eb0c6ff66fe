package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type lendingMetrics struct {
	supplied     *prometheus.GaugeVec
	borrowed     *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	liquidations *prometheus.CounterVec
	feesAccrued  *prometheus.CounterVec
	staleOracle  *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *lendingMetrics
)

// APIMetrics returns the lazily-initialised registry used to record HTTP API
// activity.
func APIMetrics() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lend",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(apiRegistry.requests, apiRegistry.errors, apiRegistry.latency)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// LendingMetrics returns the lazily-initialised registry tracking ledger
// health per vault.
func LendingMetrics() *lendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &lendingMetrics{
			supplied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "vault",
				Name:      "total_supplied",
				Help:      "Total supplied liquidity per vault in base units.",
			}, []string{"vault"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "vault",
				Name:      "total_borrowed",
				Help:      "Total outstanding debt per vault in base units.",
			}, []string{"vault"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "vault",
				Name:      "utilization_bps",
				Help:      "Current utilization per vault in basis points.",
			}, []string{"vault"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "vault",
				Name:      "liquidations_total",
				Help:      "Count of executed liquidations segmented by vault and kind.",
			}, []string{"vault", "kind"}),
			feesAccrued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "fees",
				Name:      "accrued_total",
				Help:      "Protocol fee claims recorded per vault in base units.",
			}, []string{"vault"}),
			staleOracle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "oracle",
				Name:      "stale_reads_total",
				Help:      "Count of price reads rejected for staleness per asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.supplied,
			lendingRegistry.borrowed,
			lendingRegistry.utilization,
			lendingRegistry.liquidations,
			lendingRegistry.feesAccrued,
			lendingRegistry.staleOracle,
		)
	})
	return lendingRegistry
}

// SetVaultTotals updates the supply, borrow, and utilization gauges for the
// vault. Totals are reported as float64 so dashboards can alert on trends;
// exact accounting stays in the ledger.
func (m *lendingMetrics) SetVaultTotals(vaultID string, supplied, borrowed float64, utilizationBps uint64) {
	if m == nil {
		return
	}
	m.supplied.WithLabelValues(vaultID).Set(supplied)
	m.borrowed.WithLabelValues(vaultID).Set(borrowed)
	m.utilization.WithLabelValues(vaultID).Set(float64(utilizationBps))
}

// RecordLiquidation increments the liquidation counter. Kind is "vault" for
// same-vault liquidations and "cross" for collateral-manager ones.
func (m *lendingMetrics) RecordLiquidation(vaultID, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "vault"
	}
	m.liquidations.WithLabelValues(vaultID, kind).Inc()
}

// RecordFeeAccrual adds the fee claim to the per-vault counter.
func (m *lendingMetrics) RecordFeeAccrual(vaultID string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.feesAccrued.WithLabelValues(vaultID).Add(amount)
}

// RecordStaleOracleRead counts a price read rejected for staleness.
func (m *lendingMetrics) RecordStaleOracleRead(asset string) {
	if m == nil {
		return
	}
	m.staleOracle.WithLabelValues(asset).Inc()
}
