package ingestion

import (
	"github.com/Hariharan-afk/Automated-Due-Diligence-Market-Intelligence-Agent-v2/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's prometheus collectors.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Fallbacks     prometheus.Counter
	Chunks        prometheus.Counter
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "documents_total",
			Help:      "Processed documents by outcome status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Time spent producing each stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "table_summary_fallbacks_total",
			Help:      "Tables that fell back to a deterministic summary.",
		}),
		Chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "chunks_stored_total",
			Help:      "Chunks written by documents that reached STORED.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Outcomes, m.StageDuration, m.Fallbacks, m.Chunks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(outcome core.Outcome) {
	m.Outcomes.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == core.OutcomeStored {
		m.Chunks.Add(float64(outcome.Chunks))
	}
}
