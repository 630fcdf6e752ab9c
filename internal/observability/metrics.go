package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects gateway-wide Prometheus metrics.
//
// Tracked series:
//   - turn throughput and latency per channel
//   - backend request latency and token consumption per model
//   - tool execution counts and durations
//   - active WebSocket observer connections
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: channel, status (success|error|capped)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: channel
	TurnDuration *prometheus.HistogramVec

	// BackendRequestDuration measures backend chat-completion latency.
	// Labels: model, status (success|error)
	BackendRequestDuration *prometheus.HistogramVec

	// BackendTokensUsed tracks token consumption.
	// Labels: model, type (prompt|completion)
	BackendTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error|denied|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveObservers gauges currently connected stream observers.
	// Labels: transport (ws|sse)
	ActiveObservers *prometheus.GaugeVec

	// RegistryTools gauges registered tool definitions.
	// Labels: source (builtin|user|plugin)
	RegistryTools *prometheus.GaugeVec
}

// NewMetrics creates and registers gateway metrics on the given registerer.
// Passing nil registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_turns_total",
			Help: "Completed conversation turns.",
		}, []string{"channel", "status"}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_turn_duration_seconds",
			Help:    "End-to-end turn latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"channel"}),
		BackendRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_backend_request_duration_seconds",
			Help:    "Backend chat-completion request latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model", "status"}),
		BackendTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_backend_tokens_total",
			Help: "Tokens consumed by backend calls.",
		}, []string{"model", "type"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_tool_executions_total",
			Help: "Tool invocations by outcome.",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_tool_execution_duration_seconds",
			Help:    "Tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		ActiveObservers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearth_active_observers",
			Help: "Currently connected stream observers.",
		}, []string{"transport"}),
		RegistryTools: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearth_registry_tools",
			Help: "Registered tool definitions by source.",
		}, []string{"source"}),
	}
}
