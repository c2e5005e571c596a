package diagnostics

import (
	"sort"

	"github.com/riaworks/aios-core-sub000/internal/layers"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// AnalyzeTiming compares each layer with its budget and the whole pipeline
// with opts.PipelineBudget. Layers are listed in pipeline order.
func AnalyzeTiming(hook *storage.HookMetrics, opts Options) Timing {
	opts = opts.withDefaults()
	t := Timing{Budget: storage.DurationMillis(opts.PipelineBudget)}
	if hook == nil {
		t.Verdict = VerdictSkip
		return t
	}

	defaults := layers.DefaultTimeouts()
	for name, l := range hook.PerLayer {
		e := TimingEntry{Layer: l.Layer, Name: name, Duration: l.Duration, Budget: l.Timeout}
		if e.Budget <= 0 {
			e.Budget = storage.DurationMillis(defaults[l.Layer])
		}
		switch {
		case l.Status == storage.StatusSkipped:
			e.Verdict = VerdictSkip
		case l.Status == storage.StatusTimeout || e.Duration > e.Budget:
			e.Verdict = VerdictSlow
		default:
			e.Verdict = VerdictOK
		}
		t.Entries = append(t.Entries, e)
	}
	sort.Slice(t.Entries, func(i, j int) bool { return t.Entries[i].Layer < t.Entries[j].Layer })

	t.Total = hook.TotalDuration
	t.Verdict = VerdictOK
	if t.Total > t.Budget {
		t.Verdict = VerdictSlow
	}
	return t
}
