package diagnostics

import "time"

// Defaults for Options.
const (
	DefaultStaleAfter      = 10 * time.Minute
	DefaultStaleFactor     = 0.5
	DefaultMaxTimestampGap = 5 * time.Minute
	DefaultPipelineBudget  = 100 * time.Millisecond
)

// Options tunes scoring.
type Options struct {
	// StaleAfter is the age beyond which metrics are degraded.
	StaleAfter time.Duration

	// StaleFactor multiplies the score of stale metrics.
	StaleFactor float64

	// MaxTimestampGap is the tolerated distance between the two files.
	MaxTimestampGap time.Duration

	// PipelineBudget is the whole-pipeline latency target.
	PipelineBudget time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		StaleAfter:      DefaultStaleAfter,
		StaleFactor:     DefaultStaleFactor,
		MaxTimestampGap: DefaultMaxTimestampGap,
		PipelineBudget:  DefaultPipelineBudget,
	}
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StaleAfter <= 0 {
		o.StaleAfter = d.StaleAfter
	}
	if o.StaleFactor <= 0 || o.StaleFactor > 1 {
		o.StaleFactor = d.StaleFactor
	}
	if o.MaxTimestampGap <= 0 {
		o.MaxTimestampGap = d.MaxTimestampGap
	}
	if o.PipelineBudget <= 0 {
		o.PipelineBudget = d.PipelineBudget
	}
	return o
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}
