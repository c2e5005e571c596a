package diagnostics

import (
	"math"
	"time"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// StatusMissing marks a rubric item absent from the metrics file.
const StatusMissing = "missing"

// rubricItem is one weighted check.
type rubricItem struct {
	name   string
	weight float64
}

// activationRubric sums to 100.
var activationRubric = []rubricItem{
	{"agentConfig", 20},
	{"sessionContext", 15},
	{"projectStatus", 15},
	{"coreConfig", 10},
	{"permissionMode", 10},
	{"gitConfig", 10},
	{"memories", 10},
	{"workflowContext", 10},
}

// hookRubric sums to 90. The squad layer is not scored.
var hookRubric = []rubricItem{
	{"constitution", 20},
	{"global", 15},
	{"agent", 15},
	{"workflow", 10},
	{"task", 10},
	{"keyword", 10},
	{"star-command", 10},
}

// statusCredit returns the fraction of a check's weight a status earns.
func statusCredit(status string) float64 {
	switch status {
	case storage.StatusOK, storage.StatusSkipped, storage.StatusEmpty:
		return 1
	case storage.StatusTimeout:
		return 0.25
	default:
		return 0
	}
}

// ScoreActivation grades the activation pipeline. A nil document scores zero.
func ScoreActivation(m *storage.ActivationMetrics, opts Options) Quality {
	statuses := map[string]string{}
	var ts time.Time
	if m != nil {
		ts = m.Timestamp
		for name, l := range m.Loaders {
			statuses[name] = l.Status
		}
	}
	return score(PipelineActivation, activationRubric, statuses, m != nil, ts, opts)
}

// ScoreHook grades the hook pipeline. A nil document scores zero.
func ScoreHook(m *storage.HookMetrics, opts Options) Quality {
	statuses := map[string]string{}
	var ts time.Time
	if m != nil {
		ts = m.Timestamp
		for name, l := range m.PerLayer {
			statuses[name] = l.Status
		}
	}
	return score(PipelineHook, hookRubric, statuses, m != nil, ts, opts)
}

func score(pipeline string, rubric []rubricItem, statuses map[string]string, present bool, ts time.Time, opts Options) Quality {
	opts = opts.withDefaults()
	q := Quality{Pipeline: pipeline, Present: present}
	for _, item := range rubric {
		q.MaxScore += item.weight

		status, ok := statuses[item.name]
		if !ok {
			status = StatusMissing
		}
		earned := item.weight * statusCredit(status)
		q.Checks = append(q.Checks, Check{Name: item.name, Weight: item.weight, Status: status, Earned: earned})
		q.Score += earned
	}

	if present {
		q.Age = opts.now().Sub(ts)
		if q.Age > opts.StaleAfter {
			// Stale data is degraded, never zeroed.
			q.Stale = true
			q.Score *= opts.StaleFactor
		}
	}

	if q.MaxScore > 0 {
		q.Percent = math.Round(q.Score/q.MaxScore*1000) / 10
	}
	q.Grade = scoreToGrade(q.Percent)
	return q
}

// scoreToGrade converts a 0-100 score to a letter grade.
func scoreToGrade(score float64) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score >= 40:
		return "C"
	case score >= 20:
		return "D"
	default:
		return "F"
	}
}
