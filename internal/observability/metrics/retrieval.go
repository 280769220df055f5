package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// RetrievalMetrics observes the retrieval orchestrator, the lexical snapshot
// and the circuit breakers guarding outbound calls.
type RetrievalMetrics struct {
	service string

	rankerCalls      *prometheus.CounterVec
	rankerDuration   *prometheus.HistogramVec
	retrievals       *prometheus.CounterVec
	retrievalSeconds *prometheus.HistogramVec
	fusedPassages    *prometheus.HistogramVec
	snapshotSize     prometheus.Gauge
	snapshotSwaps    prometheus.Counter
	breakerState     *prometheus.GaugeVec
}

func NewRetrievalMetrics(registerer prometheus.Registerer, service string) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		rankerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "ranker_calls_total",
			Help:      "Ranker invocations by ranker and outcome.",
		}, []string{"service", "ranker", "outcome"}),
		rankerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "ranker_duration_seconds",
			Help:      "Ranker latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"service", "ranker"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Completed retrievals by mode and degradation.",
		}, []string{"service", "mode", "degraded"}),
		retrievalSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "mode"}),
		fusedPassages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "passages",
			Help:      "Passages returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"service", "mode"}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "lexical",
			Name:        "snapshot_passages",
			Help:        "Passages in the live lexical snapshot.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		snapshotSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lexical",
			Name:        "snapshot_swaps_total",
			Help:        "Lexical snapshot rebuilds.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		}, []string{"service", "operation"}),
	}
	registerer.MustRegister(
		m.rankerCalls,
		m.rankerDuration,
		m.retrievals,
		m.retrievalSeconds,
		m.fusedPassages,
		m.snapshotSize,
		m.snapshotSwaps,
		m.breakerState,
	)
	return m
}

func (m *RetrievalMetrics) ObserveRanker(ranker domain.RankerName, outcome string, elapsed time.Duration) {
	m.rankerCalls.WithLabelValues(m.service, string(ranker), outcome).Inc()
	m.rankerDuration.WithLabelValues(m.service, string(ranker)).Observe(elapsed.Seconds())
}

func (m *RetrievalMetrics) ObserveRetrieval(mode domain.RetrievalMode, degraded bool, passages int, elapsed time.Duration) {
	degradedLabel := "false"
	if degraded {
		degradedLabel = "true"
	}
	m.retrievals.WithLabelValues(m.service, string(mode), degradedLabel).Inc()
	m.retrievalSeconds.WithLabelValues(m.service, string(mode)).Observe(elapsed.Seconds())
	m.fusedPassages.WithLabelValues(m.service, string(mode)).Observe(float64(passages))
}

func (m *RetrievalMetrics) SetLexicalSnapshotPassages(n int) {
	m.snapshotSize.Set(float64(n))
	m.snapshotSwaps.Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *RetrievalMetrics) ObserveBreakerState(operation, _, to string) {
	value := 1.0
	if to == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
