package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for goal execution.
// A nil *Metrics is valid and records nothing, so components can take it as an optional dependency.
type Metrics struct {
	GoalsTotal         *prometheus.CounterVec
	GoalDuration       prometheus.Histogram
	SubgoalsTotal      *prometheus.CounterVec
	ActionAttempts     *prometheus.CounterVec
	RetryOutcomes      *prometheus.CounterVec
	RecoveryStrategies *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GoalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_goals_total",
				Help: "Goal executions by final status",
			},
			[]string{"status", "goal_type"},
		),
		GoalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "goalpilot_goal_duration_seconds",
				Help:    "Wall-clock duration of goal executions",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		SubgoalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_subgoals_total",
				Help: "Subgoal verdicts",
			},
			[]string{"status"},
		),
		ActionAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_action_attempts_total",
				Help: "Individual action attempts by action kind and result",
			},
			[]string{"kind", "result"},
		),
		RetryOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_retry_outcomes_total",
				Help: "Terminal retry coordinator outcomes",
			},
			[]string{"outcome"},
		),
		RecoveryStrategies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_recovery_strategies_total",
				Help: "Recovery strategies chosen per classified error kind",
			},
			[]string{"error_kind", "strategy"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalpilot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goalpilot_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) ObserveGoal(status, goalType string, d time.Duration) {
	if m == nil {
		return
	}
	m.GoalsTotal.WithLabelValues(status, goalType).Inc()
	m.GoalDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSubgoal(status string) {
	if m == nil {
		return
	}
	m.SubgoalsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAttempt(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.ActionAttempts.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveRetryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RetryOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRecovery(errorKind, strategy string) {
	if m == nil {
		return
	}
	m.RecoveryStrategies.WithLabelValues(errorKind, strategy).Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
