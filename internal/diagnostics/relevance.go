package diagnostics

import "github.com/riaworks/aios-core-sub000/internal/storage"

// AnalyzeRelevance reports, for each active session signal, whether the
// layer that serves it produced rules on the last hook run. The agent signal
// falls back to the agent recorded in the hook metrics.
func AnalyzeRelevance(hook *storage.HookMetrics, s Signals) []RelevanceEntry {
	if hook == nil {
		return nil
	}
	if s.Agent == "" {
		s.Agent = hook.ActiveAgent
	}

	signals := []struct {
		signal, value, layer string
	}{
		{"agent", s.Agent, "agent"},
		{"workflow", s.Workflow, "workflow"},
		{"task", s.Task, "task"},
		{"squad", s.Squad, "squad"},
		{"keyword", s.Prompt, "keyword"},
	}

	var out []RelevanceEntry
	for _, sig := range signals {
		if sig.value == "" {
			continue
		}
		e := RelevanceEntry{Signal: sig.signal, Value: sig.value, Layer: sig.layer, Status: StatusMissing}
		if l, ok := hook.PerLayer[sig.layer]; ok {
			e.Status = l.Status
			e.Rules = l.Rules
		}
		// A layer skipped by the bracket is not a relevance failure, and a
		// prompt that names no keyword has nothing to serve.
		e.Served = e.Rules > 0 || e.Status == storage.StatusSkipped ||
			(sig.signal == "keyword" && e.Status == storage.StatusEmpty)
		if sig.signal == "keyword" {
			e.Value = truncateRunes(e.Value, 40)
		}
		out = append(out, e)
	}
	return out
}

// truncateRunes shortens s to n runes, ending with "..." when cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
