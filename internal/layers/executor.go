package layers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// Outcome records how one layer ran.
type Outcome struct {
	Layer    int
	Name     string
	Status   string
	Duration time.Duration
	Timeout  time.Duration
	Result   *Result
	Err      error
}

// Rules returns the number of rules the layer contributed.
func (o Outcome) Rules() int {
	if o.Result == nil {
		return 0
	}
	return len(o.Result.Rules)
}

// Executor runs processors with failure isolation. Timeouts are soft: a
// processor is never interrupted, and an overrun is detected after it
// returns. Its result is then discarded.
type Executor struct {
	// Timeouts overrides processor budgets by layer index.
	Timeouts map[int]time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

func (x *Executor) now() time.Time {
	if x.Now == nil {
		return time.Now()
	}
	return x.Now()
}

func (x *Executor) logger() *zap.Logger {
	if x.Logger == nil {
		return zap.NewNop()
	}
	return x.Logger
}

// TimeoutFor returns the effective budget of a processor.
func (x *Executor) TimeoutFor(p Processor) time.Duration {
	if d, ok := x.Timeouts[p.Index()]; ok && d > 0 {
		return d
	}
	return p.Timeout()
}

// Run executes one processor. It never panics and never returns an error;
// every failure is folded into the outcome status.
func (x *Executor) Run(p Processor, lc *Context) Outcome {
	out := Outcome{
		Layer:   p.Index(),
		Name:    p.Name(),
		Timeout: x.TimeoutFor(p),
	}

	if !lc.Bracket.LayerActive(p.Index()) {
		out.Status = storage.StatusSkipped
		return out
	}

	start := x.now()
	res, err := safeProcess(p, lc)
	out.Duration = x.now().Sub(start)

	switch {
	case err != nil:
		out.Status = storage.StatusError
		out.Err = err
		x.logger().Warn("layer failed",
			zap.String("layer", p.Name()), zap.Error(err))
	case out.Duration > out.Timeout:
		out.Status = storage.StatusTimeout
		x.logger().Warn("layer exceeded its budget",
			zap.String("layer", p.Name()),
			zap.Duration("duration", out.Duration),
			zap.Duration("timeout", out.Timeout))
	case res == nil:
		out.Status = storage.StatusEmpty
	default:
		out.Status = storage.StatusOK
		out.Result = res
	}

	x.logger().Debug("layer done",
		zap.String("layer", p.Name()),
		zap.String("status", out.Status),
		zap.Int("rules", out.Rules()),
		zap.Duration("duration", out.Duration))
	return out
}

func safeProcess(p Processor, lc *Context) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %s: %v", ErrLayerPanic, p.Name(), r)
		}
	}()
	return p.Process(lc)
}
