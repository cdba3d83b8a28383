package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the ingestion collectors. A nil *Metrics is a no-op.
type Metrics struct {
	sourceOutcomes  *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	retries         *prometheus.CounterVec
	externalLatency *prometheus.HistogramVec
	chunksStored    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examvault",
			Subsystem: "ingest",
			Name:      "source_outcomes_total",
			Help:      "Sources processed, by outcome",
		}, []string{"outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examvault",
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Ingestion jobs finished, by terminal status",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examvault",
			Subsystem: "external",
			Name:      "retries_total",
			Help:      "Retried external calls, by operation",
		}, []string{"operation"}),
		externalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "examvault",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Latency of external calls including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation", "result"}),
		chunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "examvault",
			Subsystem: "ingest",
			Name:      "chunks_stored_total",
			Help:      "Chunks persisted with at least one vector",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sourceOutcomes, m.jobs, m.retries, m.externalLatency, m.chunksStored)
	}
	return m
}

func (m *Metrics) SourceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sourceOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveExternal(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.externalLatency.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ChunkStored() {
	if m == nil {
		return
	}
	m.chunksStored.Inc()
}
