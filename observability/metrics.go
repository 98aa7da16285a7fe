package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleClientMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// request activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pricebridge",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks units of work executed against the ledger.
type LedgerMetrics struct {
	units    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	height   prometheus.Gauge
}

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			units: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "ledger",
				Name:      "units_total",
				Help:      "Units of work segmented by name and outcome (committed or aborted).",
			}, []string{"unit", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pricebridge",
				Subsystem: "ledger",
				Name:      "unit_duration_seconds",
				Help:      "Wall time spent executing a unit of work including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"unit"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pricebridge",
				Subsystem: "ledger",
				Name:      "height",
				Help:      "Number of committed units of work.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.units, ledgerRegistry.duration, ledgerRegistry.height)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveUnit(unit, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if unit == "" {
		unit = "unknown"
	}
	m.units.WithLabelValues(unit, outcome).Inc()
	m.duration.WithLabelValues(unit).Observe(d.Seconds())
}

func (m *LedgerMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// OracleClientMetrics captures synchronisation activity of the oracle bridge.
type OracleClientMetrics struct {
	syncs       *prometheus.CounterVec
	minted      prometheus.Counter
	recordPrice prometheus.Gauge
	recordTime  prometheus.Gauge
}

// OracleClient returns the lazily-initialised oracle bridge metrics registry.
func OracleClient() *OracleClientMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleClientMetrics{
			syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "oracleclient",
				Name:      "syncs_total",
				Help:      "Synchronisation calls segmented by operation and outcome (updated, minted, no_data, error).",
			}, []string{"operation", "outcome"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pricebridge",
				Subsystem: "oracleclient",
				Name:      "minted_units_total",
				Help:      "Proxy units minted from oracle readings.",
			}),
			recordPrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pricebridge",
				Subsystem: "oracleclient",
				Name:      "record_price",
				Help:      "Last price written to the tracked record.",
			}),
			recordTime: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pricebridge",
				Subsystem: "oracleclient",
				Name:      "record_timestamp",
				Help:      "Oracle timestamp of the last price written to the tracked record.",
			}),
		}
		prometheus.MustRegister(
			oracleRegistry.syncs,
			oracleRegistry.minted,
			oracleRegistry.recordPrice,
			oracleRegistry.recordTime,
		)
	})
	return oracleRegistry
}

func (m *OracleClientMetrics) RecordSync(operation, outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(operation, outcome).Inc()
}

// RecordMint adds a minted quantity. Only called after the unit committed.
func (m *OracleClientMetrics) RecordMint(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.minted.Add(amount.InexactFloat64())
}

func (m *OracleClientMetrics) RecordPrice(price decimal.Decimal, timestamp int64) {
	if m == nil {
		return
	}
	m.recordPrice.Set(price.InexactFloat64())
	m.recordTime.Set(float64(timestamp))
}
