package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts prefetch activity. A nil *Metrics records nothing.
type Metrics struct {
	Plans           *prometheus.CounterVec
	PrefetchedBytes *prometheus.CounterVec
	PlanFailures    *prometheus.CounterVec
	RecordedReads   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	plans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pqprefetch_plans_total",
		Help: "Prefetch plans by read mode and final state",
	}, []string{"mode", "state"})

	prefetchedBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pqprefetch_prefetched_bytes_total",
		Help: "Bytes requested by executed prefetch plans",
	}, []string{"mode"})

	planFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pqprefetch_plan_failures_total",
		Help: "Prefetch plans whose execution failed and was skipped",
	}, []string{"mode"})

	recordedReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pqprefetch_recorded_reads_total",
		Help: "Column chunk reads recorded as recent, by kind",
	}, []string{"kind"})

	reg.MustRegister(plans, prefetchedBytes, planFailures, recordedReads)

	return &Metrics{
		Plans:           plans,
		PrefetchedBytes: prefetchedBytes,
		PlanFailures:    planFailures,
		RecordedReads:   recordedReads,
	}
}

func (m *Metrics) planDone(mode, state string, bytes int64) {
	if m == nil {
		return
	}
	m.Plans.WithLabelValues(mode, state).Inc()
	if bytes > 0 {
		m.PrefetchedBytes.WithLabelValues(mode).Add(float64(bytes))
	}
}

func (m *Metrics) planFailed(mode string) {
	if m == nil {
		return
	}
	m.PlanFailures.WithLabelValues(mode).Inc()
}

func (m *Metrics) recorded(kind string) {
	if m == nil {
		return
	}
	m.RecordedReads.WithLabelValues(kind).Inc()
}
