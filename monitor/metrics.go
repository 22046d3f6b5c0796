// Package monitor exposes Prometheus metrics for indexing and retrieval.
package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vecrag"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Labels: collection
	DocumentsIndexed *prometheus.CounterVec
	// Labels: collection, reason (quota, aborted)
	DocumentsSkipped *prometheus.CounterVec
	// Labels: op, class
	OperationErrors *prometheus.CounterVec
	// Labels: op (embed, generate)
	ProviderDuration *prometheus.HistogramVec
	// Labels: op (ensure, insert, nearest, count)
	StoreDuration *prometheus.HistogramVec
	// Labels: collection
	RetrievedDocuments *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsIndexed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_indexed_total",
			Help:      "Total number of documents embedded and stored",
		}, []string{"collection"}),
		DocumentsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_skipped_total",
			Help:      "Total number of texts omitted from indexing",
		}, []string{"collection", "reason"}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of failed operations by error class",
		}, []string{"op", "class"}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of embedding and generation requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		RetrievedDocuments: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "documents_returned",
			Help:      "Number of documents returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}, []string{"collection"}),
	}
}

func (m *Metrics) Indexed(collection string) {
	if m == nil {
		return
	}
	m.DocumentsIndexed.WithLabelValues(collection).Inc()
}

func (m *Metrics) Skipped(collection, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocumentsSkipped.WithLabelValues(collection, reason).Add(float64(n))
}

func (m *Metrics) Error(op, class string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(op, class).Inc()
}

func (m *Metrics) ObserveProvider(op string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Retrieved(collection string, n int) {
	if m == nil {
		return
	}
	m.RetrievedDocuments.WithLabelValues(collection).Observe(float64(n))
}
