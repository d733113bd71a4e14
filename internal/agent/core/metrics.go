package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's prometheus collectors. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	modelCalls   *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	streamEvents *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "when2meet", Name: "runs_total", Help: "Completed dossier runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "when2meet", Name: "run_duration_seconds", Help: "Wall time of dossier runs.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "when2meet", Name: "model_calls_total", Help: "Model invocations by model and status.",
		}, []string{"model", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "when2meet", Name: "llm_tokens_total", Help: "Tokens reported by providers, by model and kind.",
		}, []string{"model", "kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "when2meet", Name: "tool_calls_total", Help: "Tool dispatches by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "when2meet", Name: "tool_duration_seconds", Help: "Tool dispatch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "when2meet", Name: "stream_events_total", Help: "SSE frames written by kind.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.runDuration, m.modelCalls, m.tokens, m.toolCalls, m.toolDuration, m.streamEvents} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics registers on the global registry served by promhttp.Handler.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func (m *Metrics) ObserveRun(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(outcome)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveModelCall(model string, err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(model, statusLabel(err)).Inc()
}

// ObserveTokens adds a provider usage report; zero reports are skipped.
func (m *Metrics) ObserveTokens(model string, u Usage) {
	if m == nil || u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return
	}
	m.tokens.WithLabelValues(model, "prompt").Add(float64(u.PromptTokens))
	m.tokens.WithLabelValues(model, "completion").Add(float64(u.CompletionTokens))
}

func (m *Metrics) ObserveToolCall(tool string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, statusLabel(err)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveStreamEvent(kind string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(kind).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
