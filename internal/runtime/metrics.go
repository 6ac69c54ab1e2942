package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is exposed alongside /health (SPEC_FULL.md supplemented feature
// #1), grounded on the teacher's internal/observability.Metrics — trimmed
// from its channel/LLM/HTTP-wide surface down to the counters this
// runtime's own components can actually populate.
type Metrics struct {
	// ActiveSessions tracks live sessions for this agent process.
	// Labels: agent_id.
	ActiveSessions *prometheus.GaugeVec

	// ToolDispatchTotal counts every tool invocation by name and outcome.
	// Labels: tool_name, status (success|error).
	ToolDispatchTotal *prometheus.CounterVec

	// HandoffTotal counts handoffs emitted by target agent.
	// Labels: target_agent.
	HandoffTotal *prometheus.CounterVec

	// CircuitBreakerTrips counts sessions terminated by the circuit
	// breaker (§7 CircuitOpen).
	CircuitBreakerTrips prometheus.Counter
}

// NewMetrics registers every collector against the default registry.
func NewMetrics(agentID string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Number of sessions currently live on this agent process",
			},
			[]string{"agent_id"},
		),
		ToolDispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_dispatch_total",
				Help: "Total tool dispatches by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		HandoffTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_handoff_total",
				Help: "Total handoffs emitted by target agent",
			},
			[]string{"target_agent"},
		),
		CircuitBreakerTrips: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcore_circuit_breaker_trips_total",
				Help: "Total sessions terminated by the per-session circuit breaker",
			},
		),
	}
}

func (m *Metrics) recordToolResult(toolName string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolDispatchTotal.WithLabelValues(toolName, status).Inc()
}
