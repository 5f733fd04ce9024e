// Package metrics exposes Prometheus counters for statement imports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// Metrics groups the importer's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Documents          *prometheus.CounterVec // by status
	TransactionsParsed prometheus.Counter
	TransactionsStored prometheus.Counter
	UnresolvedLines    prometheus.Counter
	PagesWithoutHeader prometheus.Counter
	ExtractionDuration prometheus.Histogram
}

// StatusFailed labels documents that could not be processed at all.
const StatusFailed = "failed"

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "documents_total",
			Help:      "Documents processed, by extraction status.",
		}, []string{"status"}),
		TransactionsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "transactions_parsed_total",
			Help:      "Transactions resolved from statement text.",
		}),
		TransactionsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "transactions_stored_total",
			Help:      "Transactions newly inserted; duplicates are not counted.",
		}),
		UnresolvedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "unresolved_lines_total",
			Help:      "Table lines left in the buffer at the end of a document.",
		}),
		PagesWithoutHeader: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "pages_without_header_total",
			Help:      "Pages on which no transaction table header was found.",
		}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statements",
			Name:      "extraction_duration_seconds",
			Help:      "Time spent turning one document into transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Documents, m.TransactionsParsed, m.TransactionsStored,
			m.UnresolvedLines, m.PagesWithoutHeader, m.ExtractionDuration,
		)
	}
	return m
}

// ObserveExtraction records the outcome of one extraction pass.
func (m *Metrics) ObserveExtraction(res *models.ExtractionResult, took time.Duration) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(res.Status()).Inc()
	m.TransactionsParsed.Add(float64(len(res.Transactions)))
	m.UnresolvedLines.Add(float64(len(res.UnresolvedLines)))
	m.PagesWithoutHeader.Add(float64(res.PagesWithoutHeader))
	m.ExtractionDuration.Observe(took.Seconds())
}

// ObserveStored records newly inserted transactions.
func (m *Metrics) ObserveStored(n int) {
	if m == nil {
		return
	}
	m.TransactionsStored.Add(float64(n))
}

// ObserveFailure records a document that could not be processed.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(StatusFailed).Inc()
}
