package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	// Provider metrics
	ProviderCallsTotal       *prometheus.CounterVec
	ProviderCallDuration     *prometheus.HistogramVec
	CredentialRotationsTotal prometheus.Counter

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Conversation metrics
	ConversationsTotal       prometheus.Counter
	ContextTruncationsTotal  prometheus.Counter
	ConversationCostObserved prometheus.Histogram
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_turns_total",
				Help: "Total number of orchestrated turns",
			},
			[]string{"status"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aria_turn_duration_seconds",
				Help:    "Duration of orchestrated turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_provider_calls_total",
				Help: "Total number of model API calls",
			},
			[]string{"provider", "outcome"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_provider_call_duration_seconds",
				Help:    "Duration of model API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		CredentialRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aria_credential_rotations_total",
				Help: "Total number of credential rotations",
			},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		ConversationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aria_conversations_total",
				Help: "Total number of conversations created",
			},
		),
		ContextTruncationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aria_context_truncations_total",
				Help: "Total number of turns where history was truncated to fit the budget",
			},
		),
		ConversationCostObserved: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aria_conversation_cost_chars",
				Help:    "Context cost of conversations at save time, in characters",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.TurnsTotal)
	m.registry.MustRegister(m.TurnDuration)

	m.registry.MustRegister(m.ProviderCallsTotal)
	m.registry.MustRegister(m.ProviderCallDuration)
	m.registry.MustRegister(m.CredentialRotationsTotal)

	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)

	m.registry.MustRegister(m.ConversationsTotal)
	m.registry.MustRegister(m.ContextTruncationsTotal)
	m.registry.MustRegister(m.ConversationCostObserved)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
