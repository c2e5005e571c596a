// Package diagnostics grades the health of the two context pipelines from
// their persisted metrics files: the agent activation pipeline
// (uap-metrics.json) and the prompt hook pipeline (hook-metrics.json).
//
// It runs off the hot path. Nothing here is read back by the engine.
package diagnostics

import "time"

// Pipeline names.
const (
	PipelineActivation = "activation"
	PipelineHook       = "hook"
)

// Severity constants for gaps.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Timing verdicts.
const (
	VerdictOK   = "OK"
	VerdictSlow = "SLOW"
	VerdictSkip = "SKIP"
)

// Check is one weighted rubric item.
type Check struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Status string  `json:"status"`
	Earned float64 `json:"earned"`
}

// Quality is one pipeline's score against its rubric.
type Quality struct {
	Pipeline string        `json:"pipeline"`
	Present  bool          `json:"present"`
	Stale    bool          `json:"stale"`
	Age      time.Duration `json:"age"`
	Checks   []Check       `json:"checks"`
	Score    float64       `json:"score"`
	MaxScore float64       `json:"max_score"`
	Percent  float64       `json:"percent"`
	Grade    string        `json:"grade"`
}

// ConsistencyCheck compares the two metrics files.
type ConsistencyCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// TimingEntry is one layer's duration against its budget.
type TimingEntry struct {
	Layer    int     `json:"layer"`
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
	Budget   float64 `json:"budget_ms"`
	Verdict  string  `json:"verdict"`
}

// Timing is the hook pipeline's timing breakdown.
type Timing struct {
	Entries []TimingEntry `json:"entries"`
	Total   float64       `json:"total_ms"`
	Budget  float64       `json:"budget_ms"`
	Verdict string        `json:"verdict"`
}

// RelevanceEntry reports whether an active context signal was served by its
// layer.
type RelevanceEntry struct {
	Signal string `json:"signal"`
	Value  string `json:"value"`
	Layer  string `json:"layer"`
	Status string `json:"status"`
	Rules  int    `json:"rules"`
	Served bool   `json:"served"`
}

// Gap is a ranked finding with a recommendation.
type Gap struct {
	Severity       string `json:"severity"`
	Area           string `json:"area"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}

// Signals are the session facts relevance is judged against.
type Signals struct {
	Agent    string
	Workflow string
	Task     string
	Squad    string

	// Prompt is the last user prompt, judged against the keyword layer.
	Prompt string
}

// Snapshot is the summary of one diagnostics run kept for trends.
type Snapshot struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	ActivationPercent  float64   `json:"activation_percent"`
	ActivationGrade    string    `json:"activation_grade"`
	HookPercent        float64   `json:"hook_percent"`
	HookGrade          string    `json:"hook_grade"`
	ConsistencyPassed  int       `json:"consistency_passed"`
	ConsistencyTotal   int       `json:"consistency_total"`
	GapCount           int       `json:"gap_count"`
	PipelineDurationMs float64   `json:"pipeline_duration_ms"`
}

// Trend compares this run with the previous one.
type Trend struct {
	Previous        Snapshot `json:"previous"`
	ActivationDelta float64  `json:"activation_delta"`
	HookDelta       float64  `json:"hook_delta"`
}

// Report is the full diagnostics result.
type Report struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Activation  Quality            `json:"activation"`
	Hook        Quality            `json:"hook"`
	Consistency []ConsistencyCheck `json:"consistency"`
	Timing      Timing             `json:"timing"`
	Relevance   []RelevanceEntry   `json:"relevance"`
	Gaps        []Gap              `json:"gaps"`
	Trend       *Trend             `json:"trend,omitempty"`
}
