package diagnostics

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

func baseTime() time.Time {
	return time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
}

func testOptions() Options {
	o := DefaultOptions()
	o.Now = baseTime
	return o
}

func healthyActivation(ts time.Time) *storage.ActivationMetrics {
	loaders := map[string]storage.LoaderMetric{}
	for _, item := range activationRubric {
		loaders[item.name] = storage.LoaderMetric{Duration: 4, Status: storage.StatusOK}
	}
	return &storage.ActivationMetrics{Timestamp: ts, AgentID: "dev", Loaders: loaders}
}

func healthyHook(ts time.Time) *storage.HookMetrics {
	per := map[string]storage.LayerMetric{}
	for i, item := range hookRubric {
		per[item.name] = storage.LayerMetric{Layer: i, Duration: 0.5, Timeout: 5, Status: storage.StatusOK, Rules: 1}
	}
	return &storage.HookMetrics{
		Timestamp:     ts,
		TotalDuration: 12,
		Bracket:       "MODERATE",
		ActiveAgent:   "dev",
		LayersLoaded:  len(hookRubric),
		TotalRules:    len(hookRubric),
		PerLayer:      per,
	}
}

func TestRubricWeights(t *testing.T) {
	sum := func(items []rubricItem) float64 {
		total := 0.0
		for _, i := range items {
			total += i.weight
		}
		return total
	}
	if len(activationRubric) != 8 || sum(activationRubric) != 100 {
		t.Errorf("activation rubric: %d checks, %.0f points", len(activationRubric), sum(activationRubric))
	}
	if len(hookRubric) != 7 || sum(hookRubric) != 90 {
		t.Errorf("hook rubric: %d checks, %.0f points", len(hookRubric), sum(hookRubric))
	}
}

func TestScoreHook_Healthy(t *testing.T) {
	q := ScoreHook(healthyHook(baseTime()), testOptions())
	if q.Score != 90 || q.MaxScore != 90 || q.Percent != 100 || q.Grade != "A" {
		t.Errorf("healthy hook: score=%.1f/%.0f pct=%.1f grade=%s", q.Score, q.MaxScore, q.Percent, q.Grade)
	}
	if q.Stale {
		t.Error("fresh metrics marked stale")
	}
}

func TestScoreHook_StatusCredit(t *testing.T) {
	m := healthyHook(baseTime())
	m.PerLayer["constitution"] = storage.LayerMetric{Status: storage.StatusError}
	m.PerLayer["global"] = storage.LayerMetric{Status: storage.StatusTimeout}
	m.PerLayer["keyword"] = storage.LayerMetric{Status: storage.StatusSkipped}
	delete(m.PerLayer, "task")

	q := ScoreHook(m, testOptions())
	// 90 - 20 (error) - 15*0.75 (timeout) - 10 (missing) = 48.75
	if q.Score != 48.75 {
		t.Errorf("score = %.2f, want 48.75", q.Score)
	}
	if q.Grade != "C" {
		t.Errorf("grade = %s, want C (%.1f%%)", q.Grade, q.Percent)
	}
}

func TestScore_StalenessDegradesNotZeroes(t *testing.T) {
	opts := testOptions()
	old := baseTime().Add(-time.Hour)

	q := ScoreActivation(healthyActivation(old), opts)
	if !q.Stale {
		t.Fatal("hour-old metrics should be stale")
	}
	if q.Score != 50 || q.Grade != "C" {
		t.Errorf("stale activation: score=%.1f grade=%s, want 50 C", q.Score, q.Grade)
	}

	opts.StaleFactor = 0.8
	if q := ScoreActivation(healthyActivation(old), opts); q.Score != 80 {
		t.Errorf("custom stale factor: score=%.1f, want 80", q.Score)
	}
}

func TestScore_Missing(t *testing.T) {
	q := ScoreActivation(nil, testOptions())
	if q.Present || q.Score != 0 || q.Grade != "F" {
		t.Errorf("missing activation: %+v", q)
	}
	for _, c := range q.Checks {
		if c.Status != StatusMissing {
			t.Errorf("check %s status = %s, want missing", c.Name, c.Status)
		}
	}
}

func TestScoreToGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "A"}, {80, "A"}, {79.9, "B"}, {60, "B"}, {40, "C"}, {20, "D"}, {19.9, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := scoreToGrade(tt.score); got != tt.want {
			t.Errorf("scoreToGrade(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func checkByName(checks []ConsistencyCheck, name string) ConsistencyCheck {
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	return ConsistencyCheck{Name: "not found"}
}

func TestCheckConsistency(t *testing.T) {
	opts := testOptions()

	t.Run("all pass", func(t *testing.T) {
		checks := CheckConsistency(healthyActivation(baseTime()), healthyHook(baseTime().Add(2*time.Minute)), opts)
		if len(checks) != 5 {
			t.Fatalf("expected 5 checks, got %d", len(checks))
		}
		for _, c := range checks {
			if !c.Passed {
				t.Errorf("%s failed: %s", c.Name, c.Detail)
			}
			if c.Detail == "" {
				t.Errorf("%s has no detail", c.Name)
			}
		}
	})

	t.Run("gap and agent mismatch", func(t *testing.T) {
		hook := healthyHook(baseTime().Add(-6 * time.Minute))
		hook.ActiveAgent = "qa"
		checks := CheckConsistency(healthyActivation(baseTime()), hook, opts)
		if checkByName(checks, "timestamp-gap").Passed {
			t.Error("6 minute gap should fail")
		}
		if checkByName(checks, "agent-match").Passed {
			t.Error("dev vs qa should fail")
		}
	})

	t.Run("invalid bracket and incoherent rules", func(t *testing.T) {
		hook := healthyHook(baseTime())
		hook.Bracket = "WARM"
		hook.TotalRules = 99
		checks := CheckConsistency(healthyActivation(baseTime()), hook, opts)
		if checkByName(checks, "bracket-valid").Passed || checkByName(checks, "rule-count").Passed {
			t.Errorf("expected bracket and rule-count failures: %+v", checks)
		}
	})

	t.Run("missing hook", func(t *testing.T) {
		checks := CheckConsistency(healthyActivation(baseTime()), nil, opts)
		if len(checks) != 5 {
			t.Fatalf("expected 5 checks, got %d", len(checks))
		}
		for _, c := range checks {
			if c.Passed {
				t.Errorf("%s should not pass without hook metrics", c.Name)
			}
		}
	})
}

func TestAnalyzeTiming(t *testing.T) {
	hook := healthyHook(baseTime())
	hook.PerLayer["keyword"] = storage.LayerMetric{Layer: 6, Duration: 30, Timeout: 15, Status: storage.StatusOK}
	hook.PerLayer["star-command"] = storage.LayerMetric{Layer: 7, Status: storage.StatusSkipped}
	hook.TotalDuration = 140

	tm := AnalyzeTiming(hook, testOptions())
	if tm.Verdict != VerdictSlow {
		t.Errorf("140ms pipeline verdict = %s, want SLOW", tm.Verdict)
	}
	for i := 1; i < len(tm.Entries); i++ {
		if tm.Entries[i-1].Layer > tm.Entries[i].Layer {
			t.Fatal("entries not in layer order")
		}
	}
	verdicts := map[string]string{}
	for _, e := range tm.Entries {
		verdicts[e.Name] = e.Verdict
	}
	if verdicts["keyword"] != VerdictSlow || verdicts["star-command"] != VerdictSkip || verdicts["constitution"] != VerdictOK {
		t.Errorf("unexpected verdicts: %v", verdicts)
	}

	if got := AnalyzeTiming(nil, testOptions()); got.Verdict != VerdictSkip {
		t.Errorf("nil hook verdict = %s", got.Verdict)
	}
}

func TestAnalyzeRelevance(t *testing.T) {
	hook := healthyHook(baseTime())
	hook.PerLayer["workflow"] = storage.LayerMetric{Layer: 3, Status: storage.StatusEmpty}
	hook.PerLayer["squad"] = storage.LayerMetric{Layer: 5, Status: storage.StatusSkipped}
	hook.PerLayer["keyword"] = storage.LayerMetric{Layer: 6, Status: storage.StatusEmpty}

	entries := AnalyzeRelevance(hook, Signals{Workflow: "story-dev", Squad: "alpha", Prompt: "hello there"})
	got := map[string]RelevanceEntry{}
	for _, e := range entries {
		got[e.Signal] = e
	}
	if len(entries) != 4 {
		t.Fatalf("expected agent, workflow, squad, keyword signals; got %+v", entries)
	}
	if !got["agent"].Served || got["agent"].Value != "dev" {
		t.Errorf("agent should fall back to hook agent and be served: %+v", got["agent"])
	}
	if got["workflow"].Served {
		t.Error("empty workflow layer should not count as served")
	}
	if !got["squad"].Served {
		t.Error("a bracket-skipped layer is not a relevance failure")
	}
	if !got["keyword"].Served {
		t.Error("a prompt with no keywords should not be flagged")
	}
}

func TestAnalyzeRelevance_TruncatesLongPromptOnRunes(t *testing.T) {
	hook := healthyHook(baseTime())
	prompt := strings.Repeat("é", 39) + "日本語テキスト"

	for _, e := range AnalyzeRelevance(hook, Signals{Prompt: prompt}) {
		if e.Signal != "keyword" {
			continue
		}
		if !utf8.ValidString(e.Value) {
			t.Fatalf("truncated value is not valid UTF-8: %q", e.Value)
		}
		if want := strings.Repeat("é", 37) + "..."; e.Value != want {
			t.Errorf("Value = %q, want %q", e.Value, want)
		}
		return
	}
	t.Fatal("no keyword signal")
}

func TestFindGaps_SortedBySeverity(t *testing.T) {
	hook := healthyHook(baseTime().Add(-20 * time.Minute))
	hook.PerLayer["global"] = storage.LayerMetric{Layer: 1, Status: storage.StatusError}
	hook.LayersLoaded--
	hook.TotalRules--
	hook.TotalDuration = 250

	r := Analyze(&Inputs{Hook: hook}, Signals{}, testOptions())
	if len(r.Gaps) == 0 {
		t.Fatal("expected gaps")
	}
	for i := 1; i < len(r.Gaps); i++ {
		if severityRank(r.Gaps[i-1].Severity) > severityRank(r.Gaps[i].Severity) {
			t.Fatalf("gaps not sorted at %d: %+v", i, r.Gaps)
		}
	}
	if r.Gaps[0].Severity != SeverityCritical {
		t.Errorf("first gap should be critical, got %s", r.Gaps[0].Severity)
	}
	var sawStale bool
	for _, g := range r.Gaps {
		if strings.Contains(g.Message, "stale") {
			sawStale = true
		}
	}
	if !sawStale {
		t.Error("expected a stale hook metrics gap")
	}
}

func TestCollectAndReport(t *testing.T) {
	root := t.TempDir()
	store := storage.NewMetricsStore(root)
	if err := store.WriteHook(healthyHook(baseTime())); err != nil {
		t.Fatal(err)
	}
	if err := storage.WriteJSON(store.ActivationPath(), healthyActivation(baseTime())); err != nil {
		t.Fatal(err)
	}

	r, err := Run(context.Background(), store, Signals{}, testOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.Activation.Grade != "A" || r.Hook.Grade != "A" {
		t.Errorf("grades = %s/%s, want A/A", r.Activation.Grade, r.Hook.Grade)
	}
	if len(r.Gaps) != 0 {
		t.Errorf("healthy pipelines should have no gaps: %+v", r.Gaps)
	}

	prev := r.Snapshot()
	prev.HookPercent = 70
	r.SetTrend(&prev)

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, r); err != nil {
		t.Fatalf("WriteMarkdown() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# Synapse Diagnostics",
		"## ACTIVATION Quality",
		"## HOOK Quality",
		"| agentConfig | ok |",
		"## Trend",
		"(+30.0)",
		"5/5 checks passed",
		"No gaps found.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestCollect_CorruptIsReported(t *testing.T) {
	store := storage.NewMetricsStore(t.TempDir())
	if err := os.MkdirAll(store.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.HookPath(), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := Collect(context.Background(), store)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if in.Hook != nil || in.Activation != nil {
		t.Error("corrupt and missing files should both be nil")
	}
	if len(in.Corrupt) != 1 || in.Corrupt[0] != storage.HookMetricsFile {
		t.Errorf("Corrupt = %v", in.Corrupt)
	}

	r := Analyze(in, Signals{}, testOptions())
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hook-metrics.json is corrupt") {
		t.Errorf("report should mention corruption:\n%s", buf.String())
	}
}

func TestCollect_NoStore(t *testing.T) {
	if _, err := Collect(context.Background(), nil); err != ErrNoStore {
		t.Errorf("err = %v, want ErrNoStore", err)
	}
}
