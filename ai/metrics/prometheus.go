// Package metrics provides Prometheus metrics export for the agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports conversation metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Conversation metrics
	turnLatency *prometheus.HistogramVec
	turns       *prometheus.CounterVec

	// Retrieval metrics
	retrievalLatency *prometheus.HistogramVec
	strategyUsage    *prometheus.CounterVec
	resultQuality    *prometheus.CounterVec

	// LLM token metrics
	llmTokensUsed *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkmate",
			Subsystem: "agent",
			Name:      "turn_latency_seconds",
			Help:      "Conversation turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"intent"},
	)

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkmate",
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"intent", "status"},
	)

	e.retrievalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkmate",
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Hybrid retrieval latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"strategy"},
	)

	e.strategyUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkmate",
			Subsystem: "retrieval",
			Name:      "strategy_total",
			Help:      "Retrieval attempts per strategy",
		},
		[]string{"strategy"},
	)

	e.resultQuality = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkmate",
			Subsystem: "retrieval",
			Name:      "quality_total",
			Help:      "Final result quality per search turn",
		},
		[]string{"quality"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkmate",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkmate",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turns,
		e.retrievalLatency,
		e.strategyUsage,
		e.resultQuality,
		e.llmTokensUsed,
		e.llmLatency,
	)

	return e
}

// RecordTurn records one finished conversation turn.
func (e *PrometheusExporter) RecordTurn(intent string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.turns.WithLabelValues(intent, status).Inc()
	e.turnLatency.WithLabelValues(intent).Observe(latency.Seconds())
}

// RecordRetrieval records one retrieval attempt.
func (e *PrometheusExporter) RecordRetrieval(strategy string, latency time.Duration) {
	e.strategyUsage.WithLabelValues(strategy).Inc()
	e.retrievalLatency.WithLabelValues(strategy).Observe(latency.Seconds())
}

// RecordQuality records the final quality of a search turn.
func (e *PrometheusExporter) RecordQuality(quality string) {
	e.resultQuality.WithLabelValues(quality).Inc()
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordLLMLatency records LLM request latency.
func (e *PrometheusExporter) RecordLLMLatency(model string, latency time.Duration) {
	e.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
