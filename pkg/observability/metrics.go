// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the streaming tool-call extraction server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and model.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strom_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "model"},
	)

	// RequestDuration records HTTP request duration in seconds by method and model.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strom_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "model"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strom_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// EngineGenerateDuration records how long a full streamed generation
	// (Driver.Run's consume loop, start to close of the engine channel)
	// took, by model.
	EngineGenerateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strom_engine_generate_duration_seconds",
			Help:    "Inference engine generation duration",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// EngineTokensTotal counts tokens processed by direction (prompt/completion).
	EngineTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strom_engine_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// ToolCallsExtractedTotal counts tool calls the Stream Driver shipped on
	// the wire, by dialect.
	ToolCallsExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strom_tool_calls_extracted_total",
			Help: "Tool calls extracted from streamed model output",
		},
		[]string{"dialect"},
	)

	// ParseErrorsRecoveredTotal counts ParseErrors the driver recovered
	// locally without surfacing to the client.
	ParseErrorsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strom_parse_errors_recovered_total",
			Help: "Tool-call parser errors recovered without affecting the stream",
		},
		[]string{"dialect"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		EngineGenerateDuration,
		EngineTokensTotal,
		ToolCallsExtractedTotal,
		ParseErrorsRecoveredTotal,
	)
}
