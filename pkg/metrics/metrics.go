// Package metrics exposes the pipeline's Prometheus instrumentation. All
// collectors are registered on the default registry and served by the HTTP
// edge at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundquery_runs_total",
		Help: "Pipeline runs by terminal outcome (ok, clarification, or error code).",
	}, []string{"outcome"})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundquery_tool_calls_total",
		Help: "Tool calls by tool name and final status.",
	}, []string{"tool", "status"})

	plannerAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groundquery_planner_attempts_total",
		Help: "Planner adapter invocations, including retries.",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groundquery_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})
)

// RecordRun counts one finished run. Outcome is "ok", "clarification", or
// an error code from the pipeline taxonomy.
func RecordRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// RecordToolCall counts one finished tool call.
func RecordToolCall(tool, status string) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordPlannerAttempt counts one planner adapter invocation.
func RecordPlannerAttempt() {
	plannerAttemptsTotal.Inc()
}

// ObserveStage records a stage duration.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
