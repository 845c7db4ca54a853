// Package metrics provides Prometheus instruments for the categorization
// engine and the rule learning loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "saffron"

var (
	// CategorizationsTotal counts finished categorizations.
	// Labels: engine (pass1, llm, none), outcome (accepted, reconciled, fallback, failed)
	CategorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "categorizations_total",
			Help:      "Total number of categorizations by final engine and outcome",
		},
		[]string{"engine", "outcome"},
	)

	// PhaseDuration tracks how long each pipeline phase takes.
	// Labels: phase (pass1, pass2, guardrail, total)
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "phase_duration_seconds",
			Help:      "Duration of categorization phases in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// LLMCallsTotal counts Pass-2 attempts.
	// Labels: result (success, error, rate_limited, cache_hit)
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM categorization calls by result",
		},
		[]string{"result"},
	)

	// GuardrailViolationsTotal counts guardrail corrections.
	// Labels: type
	GuardrailViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "violations_total",
			Help:      "Total number of guardrail corrections by violation type",
		},
		[]string{"type"},
	)

	// DecisionsTotal counts applied decisions.
	// Labels: mode (auto_applied, needs_review, rejected)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of decisions applied to transactions",
		},
		[]string{"mode"},
	)

	// RuleOperationsTotal counts rule lifecycle operations.
	// Labels: operation (create, canary, promote, rollback), result (success, rejected, error)
	RuleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "rule_operations_total",
			Help:      "Total number of rule version lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// CanaryAccuracy tracks the accuracy distribution of canary tests.
	CanaryAccuracy = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "canary_accuracy",
			Help:      "Accuracy of rule version canary tests",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)

	// OscillationsTotal counts oscillation detections and resolutions.
	// Labels: event (detected, resolved)
	OscillationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "oscillations_total",
			Help:      "Total number of category oscillations detected and resolved",
		},
		[]string{"event"},
	)
)

// RecordCategorization records the final engine and outcome of one
// categorization along with its phase timings.
func RecordCategorization(engine, outcome string, pass1, pass2, guardrail, total time.Duration) {
	CategorizationsTotal.WithLabelValues(engine, outcome).Inc()
	PhaseDuration.WithLabelValues("pass1").Observe(pass1.Seconds())
	if pass2 > 0 {
		PhaseDuration.WithLabelValues("pass2").Observe(pass2.Seconds())
	}
	PhaseDuration.WithLabelValues("guardrail").Observe(guardrail.Seconds())
	PhaseDuration.WithLabelValues("total").Observe(total.Seconds())
}

// RecordLLMCall records the result of one Pass-2 call.
func RecordLLMCall(result string) {
	LLMCallsTotal.WithLabelValues(result).Inc()
}

// RecordGuardrail records a guardrail correction.
func RecordGuardrail(violationType string) {
	GuardrailViolationsTotal.WithLabelValues(violationType).Inc()
}

// RecordDecision records how a decision was applied.
func RecordDecision(mode string) {
	DecisionsTotal.WithLabelValues(mode).Inc()
}

// RecordRuleOperation records a rule lifecycle operation.
func RecordRuleOperation(operation string, err error, rejected bool) {
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case rejected:
		result = "rejected"
	}
	RuleOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordCanary records a canary test's accuracy.
func RecordCanary(accuracy float64) {
	CanaryAccuracy.Observe(accuracy)
}

// RecordOscillations records n oscillation events.
func RecordOscillations(event string, n int) {
	if n <= 0 {
		return
	}
	OscillationsTotal.WithLabelValues(event).Add(float64(n))
}
