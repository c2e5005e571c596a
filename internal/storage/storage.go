// Package storage persists synapse artifacts on disk: the squad discovery
// cache and the per-invocation metrics files read by diagnostics.
//
// Every write goes through a temp-file-then-rename so concurrent hook
// processes never observe a partially written file.
package storage

import "time"

const (
	// MetricsDir holds the pipeline metrics files.
	MetricsDir = "metrics"

	// CacheDir holds the squad discovery cache.
	CacheDir = "cache"

	// HookMetricsFile is written by the context engine after every invocation.
	HookMetricsFile = "hook-metrics.json"

	// ActivationMetricsFile is written by the agent activation pipeline.
	ActivationMetricsFile = "uap-metrics.json"

	// SquadCacheFile is the squad discovery cache.
	SquadCacheFile = "squad-manifests.json"
)

// Layer and loader statuses recorded in metrics files.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusSkipped = "skipped"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// HookMetrics is the engine's metrics document, overwritten on every
// invocation.
type HookMetrics struct {
	InvocationID   string                 `json:"invocationId"`
	Timestamp      time.Time              `json:"timestamp"`
	TotalDuration  float64                `json:"totalDuration"`
	Bracket        string                 `json:"bracket"`
	ContextPercent float64                `json:"contextPercent"`
	PromptCount    int                    `json:"promptCount"`
	ActiveAgent    string                 `json:"activeAgent,omitempty"`
	LayersLoaded   int                    `json:"layersLoaded"`
	LayersSkipped  int                    `json:"layersSkipped"`
	LayersErrored  int                    `json:"layersErrored"`
	TotalRules     int                    `json:"totalRules"`
	TokensUsed     int                    `json:"tokensUsed"`
	TokenBudget    int                    `json:"tokenBudget"`
	Dropped        []string               `json:"droppedSections,omitempty"`
	PerLayer       map[string]LayerMetric `json:"perLayer"`
}

// LayerMetric is one layer's entry in HookMetrics.
type LayerMetric struct {
	Layer    int     `json:"layer"`
	Duration float64 `json:"duration"`
	Timeout  float64 `json:"timeout,omitempty"`
	Status   string  `json:"status"`
	Rules    int     `json:"rules"`
	Error    string  `json:"error,omitempty"`
}

// ActivationMetrics is the activation pipeline's metrics document. The engine
// never writes it; diagnostics reads it for cross-pipeline checks.
type ActivationMetrics struct {
	Timestamp     time.Time               `json:"timestamp"`
	TotalDuration float64                 `json:"totalDuration"`
	AgentID       string                  `json:"agentId,omitempty"`
	Quality       string                  `json:"quality,omitempty"`
	Loaders       map[string]LoaderMetric `json:"loaders"`
}

// LoaderMetric is one loader's entry in ActivationMetrics.
type LoaderMetric struct {
	Duration float64 `json:"duration"`
	Status   string  `json:"status"`
}

// DurationMillis converts a duration to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
