package diagnostics

import (
	"fmt"
	"sort"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// severityRank orders gaps, most severe first.
func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// FindGaps turns report findings into severity-sorted gaps. Gaps of equal
// severity keep discovery order.
func FindGaps(r *Report, corrupt []string) []Gap {
	var gaps []Gap
	add := func(sev, area, msg, rec string) {
		gaps = append(gaps, Gap{Severity: sev, Area: area, Message: msg, Recommendation: rec})
	}

	for _, f := range corrupt {
		add(SeverityCritical, "metrics", f+" is corrupt",
			"Delete the file; the pipeline rewrites it on its next run.")
	}

	for _, q := range []Quality{r.Activation, r.Hook} {
		qualityGaps(q, add)
	}

	for _, c := range r.Consistency {
		if c.Passed || c.Name == "metrics-present" {
			continue
		}
		sev := SeverityWarning
		if c.Name == "bracket-valid" || c.Name == "rule-count" {
			sev = SeverityCritical
		}
		add(sev, "consistency", fmt.Sprintf("%s failed: %s", c.Name, c.Detail), consistencyAdvice(c.Name))
	}

	for _, e := range r.Timing.Entries {
		if e.Verdict == VerdictSlow {
			add(SeverityInfo, "timing",
				fmt.Sprintf("layer %s took %.2fms (budget %.0fms)", e.Name, e.Duration, e.Budget),
				"Trim the domain files this layer reads or raise its timeout in config.")
		}
	}
	if r.Timing.Verdict == VerdictSlow {
		add(SeverityWarning, "timing",
			fmt.Sprintf("pipeline took %.2fms (budget %.0fms)", r.Timing.Total, r.Timing.Budget),
			"Check the slow layers above; the squad cache TTL may be too short.")
	}

	for _, e := range r.Relevance {
		if e.Served {
			continue
		}
		add(SeverityWarning, "relevance",
			fmt.Sprintf("%s %q is active but the %s layer produced no rules (%s)", e.Signal, e.Value, e.Layer, e.Status),
			relevanceAdvice(e))
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return severityRank(gaps[i].Severity) < severityRank(gaps[j].Severity)
	})
	return gaps
}

func qualityGaps(q Quality, add func(sev, area, msg, rec string)) {
	file := storage.HookMetricsFile
	if q.Pipeline == PipelineActivation {
		file = storage.ActivationMetricsFile
	}

	if !q.Present {
		add(SeverityCritical, q.Pipeline, file+" not found",
			fmt.Sprintf("Run the %s pipeline at least once so it writes metrics.", q.Pipeline))
		return
	}
	if q.Stale {
		add(SeverityWarning, q.Pipeline,
			fmt.Sprintf("%s is stale (%s); score degraded", file, age(q.Age)),
			"Trigger a fresh prompt before diagnosing.")
	}
	for _, c := range q.Checks {
		switch c.Status {
		case storage.StatusError:
			add(SeverityCritical, q.Pipeline, fmt.Sprintf("%s errored", c.Name),
				"Run with --verbose and check the log for the failing step.")
		case storage.StatusTimeout:
			add(SeverityWarning, q.Pipeline, fmt.Sprintf("%s timed out", c.Name),
				"Reduce its input size or raise its timeout.")
		case StatusMissing:
			add(SeverityWarning, q.Pipeline, fmt.Sprintf("%s not reported", c.Name),
				"Make sure the pipeline records every step in its metrics file.")
		}
	}
}

func consistencyAdvice(name string) string {
	switch name {
	case "timestamp-gap":
		return "The pipelines ran far apart; re-activate the agent and send a prompt."
	case "agent-match":
		return "The hook saw a different agent than activation; check the session's active_agent."
	case "bracket-valid":
		return "The hook metrics file was written by an incompatible version; rerun the hook."
	case "rule-count":
		return "Hook metrics totals disagree with per-layer entries; rerun the hook."
	default:
		return "Rerun both pipelines."
	}
}

func relevanceAdvice(e RelevanceEntry) string {
	switch e.Signal {
	case "agent":
		return fmt.Sprintf("Declare a domain with <NAME>_AGENT_TRIGGER=%s in the manifest.", e.Value)
	case "workflow":
		return fmt.Sprintf("Declare a domain with <NAME>_WORKFLOW_TRIGGER=%s in the manifest.", e.Value)
	case "task":
		return "Task context is always emitted; check the task layer status."
	case "keyword":
		return "The keyword layer failed; run with --verbose and check the log."
	default:
		return "Check the squad's .synapse/manifest and its domain files."
	}
}
