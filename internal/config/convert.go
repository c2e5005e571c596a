package config

import (
	"path/filepath"
	"time"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/diagnostics"
	"github.com/riaworks/aios-core-sub000/internal/engine"
	"github.com/riaworks/aios-core-sub000/internal/layers"
	"github.com/riaworks/aios-core-sub000/internal/squad"
)

// SynapseRoot returns the synapse directory, resolved against cwd.
func (c *Config) SynapseRoot(cwd string) string {
	return resolvePath(cwd, c.SynapseDir, defaultSynapseDir)
}

// SquadsRoot returns the squads directory. It defaults to the squads
// directory under the synapse root.
func (c *Config) SquadsRoot(cwd string) string {
	if c.SquadsDir == "" {
		return filepath.Join(c.SynapseRoot(cwd), "squads")
	}
	return resolvePath(cwd, c.SquadsDir, "")
}

// HistoryPath returns the diagnostics history database path.
func (c *Config) HistoryPath(cwd string) string {
	return resolvePath(c.SynapseRoot(cwd), c.Diagnostics.HistoryDB, defaultHistoryDB)
}

// CacheTTL returns the squad cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.SquadCache.TTL, squad.DefaultTTL)
}

// ContextConfig returns the bracket tracker settings. Unset values keep
// their defaults, and a bracket table that fails validation is replaced by
// the default table.
func (c *Config) ContextConfig() contextbudget.Config {
	cc := contextbudget.DefaultConfig()
	mergeInt(&cc.MaxTokens, c.Context.MaxTokens)
	mergeInt(&cc.TokensPerPrompt, c.Context.TokensPerPrompt)
	if t := c.thresholds(); t.Validate() == nil {
		cc.Thresholds = t
	}
	return cc
}

// Validate reports settings that will be replaced by defaults.
func (c *Config) Validate() error {
	if err := c.thresholds().Validate(); err != nil {
		return &ValidationError{Field: "brackets", Err: err}
	}
	return nil
}

// thresholds overlays the configured bracket table on the defaults.
func (c *Config) thresholds() contextbudget.Thresholds {
	th := contextbudget.DefaultThresholds()
	t := &th
	mergeFloat(&t.FreshMin, c.Brackets.Fresh.MinPercent)
	mergeFloat(&t.ModerateMin, c.Brackets.Moderate.MinPercent)
	mergeFloat(&t.DepletedMin, c.Brackets.Depleted.MinPercent)
	mergeInt(&t.FreshBudget, c.Brackets.Fresh.TokenBudget)
	mergeInt(&t.ModerateBudget, c.Brackets.Moderate.TokenBudget)
	mergeInt(&t.DepletedBudget, c.Brackets.Depleted.TokenBudget)
	mergeInt(&t.CriticalBudget, c.Brackets.Critical.TokenBudget)
	return th
}

// LayerTimeouts returns the configured layer budgets by layer index.
// Unknown layer names and malformed durations are ignored.
func (c *Config) LayerTimeouts() map[int]time.Duration {
	if len(c.Layers.Timeouts) == 0 {
		return nil
	}
	out := make(map[int]time.Duration)
	for _, p := range layers.Default() {
		v, ok := c.Layers.Timeouts[p.Name()]
		if !ok {
			continue
		}
		if d := parseDuration(v, 0); d > 0 {
			out[p.Index()] = d
		}
	}
	return out
}

// EngineConfig builds the engine configuration for a working directory.
func (c *Config) EngineConfig(cwd string) engine.Config {
	return engine.Config{
		SynapseRoot: c.SynapseRoot(cwd),
		SquadsRoot:  c.SquadsRoot(cwd),
		Devmode:     c.Devmode,
		Context:     c.ContextConfig(),
		Timeouts:    c.LayerTimeouts(),
		CacheTTL:    c.CacheTTL(),
	}
}

// DiagnosticsOptions builds the diagnostics tuning.
func (c *Config) DiagnosticsOptions() diagnostics.Options {
	d := diagnostics.DefaultOptions()
	d.StaleAfter = parseDuration(c.Diagnostics.StaleAfter, d.StaleAfter)
	d.MaxTimestampGap = parseDuration(c.Diagnostics.MaxTimestampGap, d.MaxTimestampGap)
	if f := c.Diagnostics.StaleFactor; f > 0 && f <= 1 {
		d.StaleFactor = f
	}
	return d
}

// resolvePath joins a relative path onto base. An empty path uses def.
func resolvePath(base, path, def string) string {
	if path == "" {
		path = def
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
