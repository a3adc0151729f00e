package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Synthesis pipeline metrics
	SynthesisRuns      *prometheus.CounterVec
	SynthesisDuration  prometheus.Histogram
	KnowledgeItems     *prometheus.CounterVec
	QuestionsResolved  *prometheus.CounterVec
	ParseFailures      prometheus.Counter
	LLMRequestLatency  prometheus.Histogram

	// Ingestion metrics
	UnitsIngested *prometheus.CounterVec

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Synthesis runs by outcome (completed, failed, no_changes)
		SynthesisRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lorehub_synthesis_runs_total",
			Help: "Total number of synthesis runs by outcome",
		}, []string{"outcome"}),

		// Full-run latency; batches are sequential so runs can take minutes
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lorehub_synthesis_run_duration_seconds",
			Help:    "Synthesis run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		// Durable knowledge writes by category
		KnowledgeItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lorehub_knowledge_items_total",
			Help: "Total knowledge items persisted by category",
		}, []string{"category"}),

		// Question resolutions by answer source (user, synthesis, auto-detected)
		QuestionsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lorehub_questions_resolved_total",
			Help: "Total questions resolved by answer source",
		}, []string{"source"}),

		// LLM responses that could not be recovered into JSON
		ParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lorehub_parse_failures_total",
			Help: "Total LLM responses that failed structured recovery",
		}),

		LLMRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lorehub_llm_request_duration_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		// Content units ingested by kind (document, transcript, slides, ...)
		UnitsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lorehub_content_units_ingested_total",
			Help: "Total content units ingested by kind",
		}, []string{"kind"}),

		// Active progress-stream connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lorehub_websocket_connections_active",
			Help: "Number of active WebSocket progress connections",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRun records a finished synthesis run with its duration
func (m *Metrics) RecordRun(outcome string, seconds float64) {
	m.SynthesisRuns.WithLabelValues(outcome).Inc()
	m.SynthesisDuration.Observe(seconds)
}

// RecordKnowledgeItems bumps a category counter by n
func (m *Metrics) RecordKnowledgeItems(category string, n int) {
	if n > 0 {
		m.KnowledgeItems.WithLabelValues(category).Add(float64(n))
	}
}

// RecordQuestionsResolved bumps the resolution counter for an answer source
func (m *Metrics) RecordQuestionsResolved(source string, n int) {
	if n > 0 {
		m.QuestionsResolved.WithLabelValues(source).Add(float64(n))
	}
}

// RecordParseFailure records an unrecoverable LLM response
func (m *Metrics) RecordParseFailure() {
	m.ParseFailures.Inc()
}

// RecordLLMLatency records one LLM completion's latency
func (m *Metrics) RecordLLMLatency(seconds float64) {
	m.LLMRequestLatency.Observe(seconds)
}

// RecordUnitIngested records an ingested content unit by kind
func (m *Metrics) RecordUnitIngested(kind string) {
	m.UnitsIngested.WithLabelValues(kind).Inc()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}
