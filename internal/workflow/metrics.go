package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pollPending   = "pending"
	pollReady     = "ready"
	pollTolerated = "tolerated_error"
	pollFailed    = "error"
)

// Metrics records workflow outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	transitions *prometheus.CounterVec
	polls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the workflow collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Generation workflow runs by final state",
			},
			[]string{"state"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Workflow state transitions",
			},
			[]string{"from", "to"},
		),
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_polls_total",
				Help:      "Status polls by result",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Wall-clock duration of workflow runs",
				Buckets:   []float64{1, 5, 10, 20, 40, 60, 90, 120, 150, 180},
			},
			[]string{"state"},
		),
	}
}

func (m *Metrics) observeRun(final State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(final)).Inc()
	m.duration.WithLabelValues(string(final)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeTransition(from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) observePoll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}
