package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the agent's Prometheus collectors.
type Metrics struct {
	TurnsTotal       *prometheus.CounterVec
	NodeDuration     *prometheus.HistogramVec
	CorrectionsTotal prometheus.Counter
	NameResolutions  *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Total number of conversational turns by path and outcome",
			},
			[]string{"path", "outcome"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "agent_node_duration_seconds",
				Help: "Duration of workflow node executions",
			},
			[]string{"node"},
		),
		CorrectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_sql_corrections_total",
				Help: "Total number of SQL correction attempts",
			},
		),
		NameResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_name_resolutions_total",
				Help: "Name resolutions by kind (exact, fuzzy, unresolved)",
			},
			[]string{"kind"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of agent API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "agent_request_duration_seconds",
				Help: "Duration of agent API requests",
			},
			[]string{"method", "endpoint"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.TurnsTotal,
			m.NodeDuration,
			m.CorrectionsTotal,
			m.NameResolutions,
			m.RequestsTotal,
			m.RequestDuration,
		)
	}
	return m
}
