// Package engine runs the synapse pipeline for one prompt: it derives the
// context bracket, runs the active layers in order, formats the document and
// records metrics.
//
// Process never fails. Every layer error, timeout or panic is isolated and
// reported in the metrics; the caller always gets a well-formed document.
package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/formatter"
	"github.com/riaworks/aios-core-sub000/internal/layers"
	"github.com/riaworks/aios-core-sub000/internal/manifest"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/squad"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// Files under the synapse root.
const (
	ManifestFile    = "manifest"
	MemoryHintsFile = "memory-hints"
)

// Config is the explicit engine configuration. Nothing is read from the
// process environment or working directory.
type Config struct {
	SynapseRoot string
	SquadsRoot  string
	Devmode     bool
	Context     contextbudget.Config

	// Timeouts overrides layer budgets by layer index.
	Timeouts map[int]time.Duration

	CacheTTL time.Duration
}

// ProcessOptions are per-call overrides.
type ProcessOptions struct {
	// Devmode appends diagnostics to this document only.
	Devmode bool
}

// Result is the outcome of one invocation.
type Result struct {
	Document string                    `json:"document"`
	Bracket  contextbudget.BracketInfo `json:"bracket"`
	Layers   []layers.Outcome          `json:"-"`
	Metrics  *storage.HookMetrics      `json:"metrics"`
	Output   formatter.Output          `json:"output"`
}

// Engine runs the pipeline. It holds no per-invocation state.
type Engine struct {
	cfg        Config
	processors []layers.Processor
	executor   *layers.Executor
	cache      *squad.Cache
	metrics    *storage.MetricsStore
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now for bracket timing and metrics timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetricsStore overrides where metrics are written. A nil store disables
// metrics persistence.
func WithMetricsStore(s *storage.MetricsStore) Option {
	return func(e *Engine) { e.metrics = s }
}

// WithProcessors replaces the default L0 to L7 pipeline.
func WithProcessors(p []layers.Processor) Option {
	return func(e *Engine) { e.processors = p }
}

// WithSquadCache overrides the squad discovery cache.
func WithSquadCache(c *squad.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// New creates an engine.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.Context.MaxTokens <= 0 {
		cfg.Context = contextbudget.DefaultConfig()
	}
	if cfg.SquadsRoot == "" {
		cfg.SquadsRoot = filepath.Join(cfg.SynapseRoot, "squads")
	}

	e := &Engine{
		cfg:        cfg,
		processors: layers.Default(),
		metrics:    storage.NewMetricsStore(cfg.SynapseRoot),
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	e.cache = squad.NewCache(cfg.SynapseRoot, cfg.CacheTTL)
	for _, opt := range opts {
		opt(e)
	}

	e.cache.Logger = e.logger
	e.executor = &layers.Executor{
		Timeouts: cfg.Timeouts,
		Now:      e.now,
		Logger:   e.logger,
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Process builds the document for one prompt.
func (e *Engine) Process(prompt string, sess *session.Session, opts ProcessOptions) (res *Result) {
	start := e.now()
	if sess == nil {
		sess = session.New("")
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pipeline panicked", zap.Any("panic", r))
			res = e.minimal(sess, start, fmt.Errorf("%w: %v", ErrPipelinePanic, r))
		}
	}()

	m, err := manifest.Load(filepath.Join(e.cfg.SynapseRoot, ManifestFile))
	if err != nil {
		e.logger.Warn("manifest unreadable, continuing without it", zap.Error(err))
	}

	bracket := e.track(sess)
	lc := &layers.Context{
		Prompt:      prompt,
		Session:     sess,
		Manifest:    m,
		SynapseRoot: e.cfg.SynapseRoot,
		SquadsRoot:  e.cfg.SquadsRoot,
		Bracket:     bracket,
		SquadCache:  e.cache,
	}

	outcomes := make([]layers.Outcome, 0, len(e.processors))
	for _, p := range e.processors {
		o := e.executor.Run(p, lc)
		outcomes = append(outcomes, o)
		if o.Result != nil {
			lc.Previous = append(lc.Previous, o.Result)
		}
	}

	out := formatter.Format(formatter.Input{
		Bracket:       bracket,
		Outcomes:      outcomes,
		AgentID:       sess.AgentID(),
		WorkflowID:    sess.WorkflowID(),
		SquadName:     sess.SquadName(),
		MemoryHints:   e.memoryHints(bracket),
		Devmode:       e.cfg.Devmode || m.Devmode || opts.Devmode,
		TotalDuration: e.now().Sub(start),
	})

	metrics := e.buildMetrics(sess, bracket, outcomes, out, e.now().Sub(start))
	e.persist(metrics)

	e.logger.Info("pipeline complete",
		zap.String("invocation", metrics.InvocationID),
		zap.String("bracket", string(bracket.Bracket)),
		zap.Int("rules", metrics.TotalRules),
		zap.Int("tokens", out.TokensUsed),
		zap.Float64("duration_ms", metrics.TotalDuration))

	return &Result{
		Document: out.Document,
		Bracket:  bracket,
		Layers:   outcomes,
		Metrics:  metrics,
		Output:   out,
	}
}

func (e *Engine) memoryHints(b contextbudget.BracketInfo) []string {
	if !b.NeedsMemoryHints {
		return nil
	}
	hints, err := manifest.LoadDomainFile(filepath.Join(e.cfg.SynapseRoot, MemoryHintsFile), string(b.Bracket))
	if err != nil {
		e.logger.Warn("memory hints unreadable", zap.Error(err))
		return nil
	}
	return hints
}

func (e *Engine) buildMetrics(sess *session.Session, b contextbudget.BracketInfo, outcomes []layers.Outcome, out formatter.Output, total time.Duration) *storage.HookMetrics {
	m := &storage.HookMetrics{
		InvocationID:   uuid.NewString(),
		Timestamp:      e.now().UTC(),
		TotalDuration:  storage.DurationMillis(total),
		Bracket:        string(b.Bracket),
		ContextPercent: b.ContextPercent,
		PromptCount:    sess.PromptCount,
		ActiveAgent:    sess.AgentID(),
		TokensUsed:     out.TokensUsed,
		TokenBudget:    out.Budget,
		Dropped:        out.Dropped,
		PerLayer:       make(map[string]storage.LayerMetric, len(outcomes)),
	}
	for _, o := range outcomes {
		lm := storage.LayerMetric{
			Layer:    o.Layer,
			Duration: storage.DurationMillis(o.Duration),
			Timeout:  storage.DurationMillis(o.Timeout),
			Status:   o.Status,
			Rules:    o.Rules(),
		}
		if o.Err != nil {
			lm.Error = o.Err.Error()
		}
		m.PerLayer[o.Name] = lm

		switch o.Status {
		case storage.StatusOK:
			m.LayersLoaded++
			m.TotalRules += o.Rules()
		case storage.StatusSkipped:
			m.LayersSkipped++
		case storage.StatusError, storage.StatusTimeout:
			m.LayersErrored++
		}
	}
	return m
}

func (e *Engine) persist(m *storage.HookMetrics) {
	if e.metrics == nil {
		return
	}
	if err := e.metrics.WriteHook(m); err != nil {
		e.logger.Warn("failed to write hook metrics", zap.Error(err))
	}
}

// track decides the bracket, never letting it fall behind the bracket the
// session last recorded.
func (e *Engine) track(sess *session.Session) contextbudget.BracketInfo {
	b := contextbudget.Track(sess.PromptCount, sess.Context.LastContextPercent, e.cfg.Context)
	return b.AtLeast(contextbudget.Bracket(sess.Context.LastBracket), e.cfg.Context.Thresholds)
}

// minimal is the fallback result when the pipeline itself fails.
func (e *Engine) minimal(sess *session.Session, start time.Time, cause error) *Result {
	bracket := e.track(sess)
	out := formatter.Format(formatter.Input{Bracket: bracket})
	metrics := e.buildMetrics(sess, bracket, nil, out, e.now().Sub(start))
	metrics.LayersErrored = len(e.processors)
	e.logger.Error("returning minimal document", zap.Error(cause))
	e.persist(metrics)
	return &Result{Document: out.Document, Bracket: bracket, Metrics: metrics, Output: out}
}
