// Package metrics exposes Prometheus instruments for statement conversions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Conversion outcomes.
const (
	OutcomeOK               = "ok"
	OutcomeNoTransactions   = "no_transactions"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeCancelled        = "cancelled"
	OutcomeError            = "error"
)

// Metrics holds the conversion instruments on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	conversions  *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	transactions prometheus.Counter
	warnings     prometheus.Counter
	duration     prometheus.Histogram
}

// New registers the instruments plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "conversions_total",
			Help:      "Statement conversions by outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "rejected_rows_total",
			Help:      "Table rows dropped during extraction, by reason.",
		}, []string{"reason"}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "transactions_total",
			Help:      "Transactions written to ledgers.",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "balance_warnings_total",
			Help:      "Balance replay mismatches.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statement",
			Name:      "conversion_duration_seconds",
			Help:      "Time from upload to reconciled ledger.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
	m.registry.MustRegister(
		m.conversions, m.rejected, m.transactions, m.warnings, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveConversion records one conversion attempt.
func (m *Metrics) ObserveConversion(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// ObserveLedger records what a successful conversion produced.
func (m *Metrics) ObserveLedger(l *models.Ledger) {
	if m == nil || l == nil {
		return
	}
	m.transactions.Add(float64(len(l.Transactions)))
	m.warnings.Add(float64(len(l.Warnings)))
	for _, r := range l.Rejections {
		m.rejected.WithLabelValues(string(r.Reason)).Add(float64(r.Count))
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
