package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutcomesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fishrules_outcomes_enqueued_total",
		Help: "Total number of fishing outcomes placed on the async queue.",
	})

	OutcomesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fishrules_outcomes_processed_total",
		Help: "Total number of fishing outcomes fully processed by the engine.",
	})

	OutcomesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fishrules_outcomes_dropped_total",
		Help: "Total number of fishing outcomes rejected due to a full queue.",
	})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fishrules_rules_matched_total",
		Help: "Total number of rule matches, labelled by rule ID.",
	}, []string{"rule_id"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fishrules_actions_executed_total",
		Help: "Total number of actions executed, labelled by kind and status.",
	}, []string{"action_kind", "status"})

	PlaceholderQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fishrules_placeholder_queries_total",
		Help: "Placeholder lookups, labelled by how they were answered (live, cached, builtin, miss).",
	}, []string{"source"})

	Diagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fishrules_diagnostics_total",
		Help: "Non-fatal evaluation diagnostics, labelled by kind.",
	}, []string{"kind"})

	Reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fishrules_rule_reloads_total",
		Help: "Rule set reload attempts, labelled by result.",
	}, []string{"result"})

	ActiveRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fishrules_active_rules",
		Help: "Number of rules in the active rule set.",
	})

	OutcomeProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fishrules_outcome_processing_duration_us",
		Help:    "Outcome evaluation and dispatch latency in microseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 25000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fishrules_queue_utilization_ratio",
		Help: "Current async outcome queue utilization (0–1).",
	})
)
