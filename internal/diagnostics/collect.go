package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// Inputs are the metrics documents a report is built from. A nil document
// was not found. Corrupt documents are treated as missing and noted.
type Inputs struct {
	Activation *storage.ActivationMetrics
	Hook       *storage.HookMetrics
	Corrupt    []string
}

// Collect reads both metrics files concurrently.
func Collect(ctx context.Context, store *storage.MetricsStore) (*Inputs, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	var in Inputs
	var actCorrupt, hookCorrupt bool
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := store.ReadActivation()
		if errors.Is(err, storage.ErrCorrupt) {
			actCorrupt = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("activation metrics: %w", err)
		}
		in.Activation = m
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := store.ReadHook()
		if errors.Is(err, storage.ErrCorrupt) {
			hookCorrupt = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("hook metrics: %w", err)
		}
		in.Hook = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if actCorrupt {
		in.Corrupt = append(in.Corrupt, storage.ActivationMetricsFile)
	}
	if hookCorrupt {
		in.Corrupt = append(in.Corrupt, storage.HookMetricsFile)
	}
	return &in, nil
}

// Analyze builds a report from collected inputs.
func Analyze(in *Inputs, s Signals, opts Options) *Report {
	opts = opts.withDefaults()
	if in == nil {
		in = &Inputs{}
	}

	r := &Report{
		ID:          uuid.NewString(),
		GeneratedAt: opts.now().UTC(),
		Activation:  ScoreActivation(in.Activation, opts),
		Hook:        ScoreHook(in.Hook, opts),
		Consistency: CheckConsistency(in.Activation, in.Hook, opts),
		Timing:      AnalyzeTiming(in.Hook, opts),
		Relevance:   AnalyzeRelevance(in.Hook, s),
	}
	r.Gaps = FindGaps(r, in.Corrupt)
	return r
}

// Run collects the metrics files and analyzes them.
func Run(ctx context.Context, store *storage.MetricsStore, s Signals, opts Options) (*Report, error) {
	in, err := Collect(ctx, store)
	if err != nil {
		return nil, err
	}
	return Analyze(in, s, opts), nil
}

// Snapshot summarizes the report for trend tracking.
func (r *Report) Snapshot() Snapshot {
	passed := 0
	for _, c := range r.Consistency {
		if c.Passed {
			passed++
		}
	}
	return Snapshot{
		ID:                 r.ID,
		Timestamp:          r.GeneratedAt,
		ActivationPercent:  r.Activation.Percent,
		ActivationGrade:    r.Activation.Grade,
		HookPercent:        r.Hook.Percent,
		HookGrade:          r.Hook.Grade,
		ConsistencyPassed:  passed,
		ConsistencyTotal:   len(r.Consistency),
		GapCount:           len(r.Gaps),
		PipelineDurationMs: r.Timing.Total,
	}
}

// SetTrend attaches the comparison with a previous run. A nil previous run
// clears the trend.
func (r *Report) SetTrend(prev *Snapshot) {
	if prev == nil {
		r.Trend = nil
		return
	}
	r.Trend = &Trend{
		Previous:        *prev,
		ActivationDelta: r.Activation.Percent - prev.ActivationPercent,
		HookDelta:       r.Hook.Percent - prev.HookPercent,
	}
}

// age formats a duration for reports.
func age(d time.Duration) string {
	if d <= 0 {
		return "just now"
	}
	return d.Round(time.Second).String() + " ago"
}
