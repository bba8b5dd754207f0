// Package metrics exposes Prometheus collectors for commit-message generation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend label values.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Metrics holds the generation collectors. A nil *Metrics records nothing.
type Metrics struct {
	GeneratedTokens    prometheus.Counter
	GenerationDuration *prometheus.HistogramVec
	GenerationErrors   *prometheus.CounterVec
	PromptTokens       prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GeneratedTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "committer_generated_tokens_total",
			Help: "Total number of tokens emitted by the local decode loop",
		}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "committer_generation_duration_seconds",
			Help:    "Wall time of one commit-message generation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
		GenerationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "committer_generation_errors_total",
			Help: "Failed generations by backend and error kind",
		}, []string{"backend", "kind"}),
		PromptTokens: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "committer_prompt_tokens",
			Help:    "Distribution of encoded prompt lengths",
			Buckets: []float64{16, 64, 128, 256, 512, 1024, 2048, 4096},
		}),
	}
}

// RecordLocal records one finished local generation.
func (m *Metrics) RecordLocal(promptTokens, generated int, d time.Duration) {
	if m == nil {
		return
	}
	m.PromptTokens.Observe(float64(promptTokens))
	m.GeneratedTokens.Add(float64(generated))
	m.GenerationDuration.WithLabelValues(BackendLocal).Observe(d.Seconds())
}

// RecordRemote records one finished remote generation.
func (m *Metrics) RecordRemote(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDuration.WithLabelValues(BackendRemote).Observe(d.Seconds())
}

// RecordError counts a failed generation.
func (m *Metrics) RecordError(backend, kind string) {
	if m == nil {
		return
	}
	m.GenerationErrors.WithLabelValues(backend, kind).Inc()
}
