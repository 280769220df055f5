package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// WorkerMetrics tracks the ingest pipeline: extraction, chunking, embedding
// and the write to the passage store.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	documents       *prometheus.CounterVec
	documentSeconds *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	queueLag        prometheus.Histogram
	passages        prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		service:  service,
		registry: registry,
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "documents_total",
			Help:        "Documents taken off the ingest queue by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		documentSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "document_duration_seconds",
			Help:        "Time from dequeue to indexed passages, by outcome.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "documents_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: constLabels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "queue_lag_seconds",
			Help:        "Delay between upload and the start of processing.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}),
		passages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "passages_indexed_total",
			Help:        "Passages written to the passage store.",
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(m.documents, m.documentSeconds, m.inFlight, m.queueLag, m.passages)
	return m
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track marks a document as in flight and returns the func that records its
// outcome once processing ends.
func (m *WorkerMetrics) Track(createdAt time.Time) func(passages int, err error) {
	started := time.Now()
	if !createdAt.IsZero() {
		if lag := started.Sub(createdAt); lag >= 0 {
			m.queueLag.Observe(lag.Seconds())
		}
	}
	m.inFlight.Inc()

	return func(passages int, err error) {
		m.inFlight.Dec()
		outcome := IngestOutcome(err)
		m.documents.WithLabelValues(outcome).Inc()
		m.documentSeconds.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
		if err == nil && passages > 0 {
			m.passages.Add(float64(passages))
		}
	}
}

// IngestOutcome maps a processing error onto a bounded label set.
func IngestOutcome(err error) string {
	switch {
	case err == nil:
		return "indexed"
	case errors.Is(err, domain.ErrInvalidInput):
		return "rejected"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "missing"
	case errors.Is(err, domain.ErrTemporary), errors.Is(err, domain.ErrRetrievalUnavailable):
		return "retryable"
	default:
		return "failed"
	}
}
