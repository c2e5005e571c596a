package diagnostics

import (
	"fmt"
	"time"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// CheckConsistency compares the activation and hook metrics. The timestamp
// check tolerates a gap; the pipelines run at different moments of a turn.
func CheckConsistency(act *storage.ActivationMetrics, hook *storage.HookMetrics, opts Options) []ConsistencyCheck {
	opts = opts.withDefaults()
	checks := []ConsistencyCheck{presenceCheck(act, hook)}

	if act == nil || hook == nil {
		detail := "skipped: both metrics files are required"
		checks = append(checks,
			ConsistencyCheck{Name: "timestamp-gap", Detail: detail},
			ConsistencyCheck{Name: "agent-match", Detail: detail},
		)
	} else {
		checks = append(checks, timestampCheck(act, hook, opts), agentCheck(act, hook))
	}

	if hook == nil {
		detail := "skipped: hook metrics missing"
		return append(checks,
			ConsistencyCheck{Name: "bracket-valid", Detail: detail},
			ConsistencyCheck{Name: "rule-count", Detail: detail},
		)
	}
	return append(checks, bracketCheck(hook), ruleCountCheck(hook))
}

func presenceCheck(act *storage.ActivationMetrics, hook *storage.HookMetrics) ConsistencyCheck {
	c := ConsistencyCheck{Name: "metrics-present", Passed: act != nil && hook != nil}
	switch {
	case c.Passed:
		c.Detail = "both metrics files present"
	case act == nil && hook == nil:
		c.Detail = "neither metrics file found"
	case act == nil:
		c.Detail = storage.ActivationMetricsFile + " not found"
	default:
		c.Detail = storage.HookMetricsFile + " not found"
	}
	return c
}

func timestampCheck(act *storage.ActivationMetrics, hook *storage.HookMetrics, opts Options) ConsistencyCheck {
	gap := hook.Timestamp.Sub(act.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	return ConsistencyCheck{
		Name:   "timestamp-gap",
		Passed: gap <= opts.MaxTimestampGap,
		Detail: fmt.Sprintf("gap %s (max %s)", gap.Round(time.Second), opts.MaxTimestampGap),
	}
}

func agentCheck(act *storage.ActivationMetrics, hook *storage.HookMetrics) ConsistencyCheck {
	return ConsistencyCheck{
		Name:   "agent-match",
		Passed: act.AgentID == hook.ActiveAgent,
		Detail: fmt.Sprintf("activation=%q hook=%q", act.AgentID, hook.ActiveAgent),
	}
}

func bracketCheck(hook *storage.HookMetrics) ConsistencyCheck {
	return ConsistencyCheck{
		Name:   "bracket-valid",
		Passed: contextbudget.Bracket(hook.Bracket).Valid(),
		Detail: fmt.Sprintf("bracket %q at %.1f%% context", hook.Bracket, hook.ContextPercent),
	}
}

// ruleCountCheck verifies the totals agree with the per-layer entries.
func ruleCountCheck(hook *storage.HookMetrics) ConsistencyCheck {
	rules, loaded := 0, 0
	for _, l := range hook.PerLayer {
		if l.Status == storage.StatusOK {
			rules += l.Rules
			loaded++
		}
	}
	return ConsistencyCheck{
		Name:   "rule-count",
		Passed: rules == hook.TotalRules && loaded == hook.LayersLoaded,
		Detail: fmt.Sprintf("total %d rules over %d layers; per-layer sum %d over %d",
			hook.TotalRules, hook.LayersLoaded, rules, loaded),
	}
}
