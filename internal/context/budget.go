// Package context tracks how much of the model's context window is believed to
// remain and maps that estimate to a bracket with its token budget and active
// layer set.
package context

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for context estimation.
const (
	// DefaultMaxTokens is the assumed max context window.
	DefaultMaxTokens = 200000

	// DefaultTokensPerPrompt is the average context consumed by one turn.
	DefaultTokensPerPrompt = 1500
)

// Default bracket thresholds, as percent of context remaining.
const (
	// FreshThreshold and above is FRESH.
	FreshThreshold = 60.0

	// ModerateThreshold and above is MODERATE.
	ModerateThreshold = 40.0

	// DepletedThreshold and above is DEPLETED; anything lower is CRITICAL.
	DepletedThreshold = 25.0
)

// Default token budgets per bracket. CRITICAL is the largest so the handoff
// warning always fits.
const (
	FreshBudget    = 800
	ModerateBudget = 1500
	DepletedBudget = 2000
	CriticalBudget = 2500
)

// Bracket is the discrete context state.
type Bracket string

const (
	BracketFresh    Bracket = "FRESH"
	BracketModerate Bracket = "MODERATE"
	BracketDepleted Bracket = "DEPLETED"
	BracketCritical Bracket = "CRITICAL"
)

// AllBrackets returns brackets ordered by decreasing available context.
func AllBrackets() []Bracket {
	return []Bracket{BracketFresh, BracketModerate, BracketDepleted, BracketCritical}
}

// Rank orders brackets: FRESH is 0, CRITICAL is 3. Unknown brackets rank -1.
func (b Bracket) Rank() int {
	switch b {
	case BracketFresh:
		return 0
	case BracketModerate:
		return 1
	case BracketDepleted:
		return 2
	case BracketCritical:
		return 3
	}
	return -1
}

// Valid reports whether b is a known bracket.
func (b Bracket) Valid() bool {
	return b.Rank() >= 0
}

// Layer indexes active in the FRESH bracket: constitution, global, agent and
// star-command.
var freshLayers = []int{0, 1, 2, 7}

// allLayers is every pipeline layer.
var allLayers = []int{0, 1, 2, 3, 4, 5, 6, 7}

// Thresholds configures bracket boundaries and budgets.
type Thresholds struct {
	FreshMin    float64
	ModerateMin float64
	DepletedMin float64

	FreshBudget    int
	ModerateBudget int
	DepletedBudget int
	CriticalBudget int
}

// ErrThresholdOrder reports a bracket table whose boundaries or budgets are
// out of order.
var ErrThresholdOrder = errors.New("bracket table out of order")

// Validate checks that boundaries descend within (0, 100] and that budgets
// grow strictly from FRESH to CRITICAL.
func (t Thresholds) Validate() error {
	if !(t.FreshMin <= 100 && t.FreshMin > t.ModerateMin && t.ModerateMin > t.DepletedMin && t.DepletedMin > 0) {
		return fmt.Errorf("%w: min percents %v/%v/%v must descend within (0, 100]",
			ErrThresholdOrder, t.FreshMin, t.ModerateMin, t.DepletedMin)
	}
	if !(t.FreshBudget > 0 && t.FreshBudget < t.ModerateBudget && t.ModerateBudget < t.DepletedBudget && t.DepletedBudget < t.CriticalBudget) {
		return fmt.Errorf("%w: token budgets %d/%d/%d/%d must grow from FRESH to CRITICAL",
			ErrThresholdOrder, t.FreshBudget, t.ModerateBudget, t.DepletedBudget, t.CriticalBudget)
	}
	return nil
}

// DefaultThresholds returns the default bracket table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FreshMin:       FreshThreshold,
		ModerateMin:    ModerateThreshold,
		DepletedMin:    DepletedThreshold,
		FreshBudget:    FreshBudget,
		ModerateBudget: ModerateBudget,
		DepletedBudget: DepletedBudget,
		CriticalBudget: CriticalBudget,
	}
}

// Config holds tracker settings.
type Config struct {
	MaxTokens       int
	TokensPerPrompt int
	Thresholds      Thresholds
}

// DefaultConfig returns the default tracker settings.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       DefaultMaxTokens,
		TokensPerPrompt: DefaultTokensPerPrompt,
		Thresholds:      DefaultThresholds(),
	}
}

// BracketInfo is the tracker's decision for one invocation.
type BracketInfo struct {
	Bracket             Bracket `json:"bracket"`
	ContextPercent      float64 `json:"context_percent"`
	TokenBudget         int     `json:"token_budget"`
	ActiveLayers        []int   `json:"active_layers"`
	NeedsHandoffWarning bool    `json:"needs_handoff_warning"`
	NeedsMemoryHints    bool    `json:"needs_memory_hints"`
}

// LayerActive reports whether the layer index runs in this bracket.
func (b BracketInfo) LayerActive(index int) bool {
	for _, l := range b.ActiveLayers {
		if l == index {
			return true
		}
	}
	return false
}

// EstimateContextPercent returns the estimated percentage of context window
// remaining after promptCount turns, clamped to [0, 100].
func EstimateContextPercent(promptCount, tokensPerPrompt, maxTokens int) float64 {
	if maxTokens <= 0 {
		return 0
	}
	if promptCount < 0 {
		promptCount = 0
	}
	used := float64(promptCount) * float64(tokensPerPrompt)
	remaining := (float64(maxTokens) - used) * 100 / float64(maxTokens)
	return clampPercent(remaining)
}

// CalculateBracket maps a remaining-context percentage to a bracket.
func CalculateBracket(percent float64, t Thresholds) Bracket {
	switch {
	case percent >= t.FreshMin:
		return BracketFresh
	case percent >= t.ModerateMin:
		return BracketModerate
	case percent >= t.DepletedMin:
		return BracketDepleted
	default:
		return BracketCritical
	}
}

// TokenBudget returns the budget for a bracket.
func TokenBudget(b Bracket, t Thresholds) int {
	switch b {
	case BracketFresh:
		return t.FreshBudget
	case BracketModerate:
		return t.ModerateBudget
	case BracketDepleted:
		return t.DepletedBudget
	default:
		return t.CriticalBudget
	}
}

// ActiveLayers returns the layer indexes that run in a bracket.
func ActiveLayers(b Bracket) []int {
	if b == BracketFresh {
		return append([]int(nil), freshLayers...)
	}
	return append([]int(nil), allLayers...)
}

// Track derives the bracket for an invocation. reportedPercent is the
// session's own remaining-context figure, or a value <= 0 when unknown; the
// more depleted of estimate and report wins.
func Track(promptCount int, reportedPercent float64, cfg Config) BracketInfo {
	percent := EstimateContextPercent(promptCount, cfg.TokensPerPrompt, cfg.MaxTokens)
	if reportedPercent > 0 && reportedPercent < percent {
		percent = clampPercent(reportedPercent)
	}

	b := CalculateBracket(percent, cfg.Thresholds)
	return BracketInfo{
		Bracket:             b,
		ContextPercent:      roundDown(percent),
		TokenBudget:         TokenBudget(b, cfg.Thresholds),
		ActiveLayers:        ActiveLayers(b),
		NeedsHandoffWarning: b == BracketCritical,
		NeedsMemoryHints:    b == BracketDepleted || b == BracketCritical,
	}
}

// AtLeast returns b moved forward to floor when floor is more depleted. A
// session feeds its last bracket here so the bracket never moves backward,
// whatever the percent inputs say. Unknown floors are ignored.
func (b BracketInfo) AtLeast(floor Bracket, t Thresholds) BracketInfo {
	if floor.Rank() <= b.Bracket.Rank() {
		return b
	}
	b.Bracket = floor
	b.TokenBudget = TokenBudget(floor, t)
	b.ActiveLayers = ActiveLayers(floor)
	b.NeedsHandoffWarning = floor == BracketCritical
	b.NeedsMemoryHints = floor == BracketDepleted || floor == BracketCritical
	return b
}

// Recommendation returns advice for the bracket banner.
func Recommendation(b Bracket) string {
	switch b {
	case BracketCritical:
		return "Context nearly exhausted. Finish the current step and hand off to a fresh session."
	case BracketDepleted:
		return "Context running low. Persist decisions and keep responses focused."
	case BracketModerate:
		return "Context healthy. Batch remaining work where possible."
	default:
		return "Context fresh. Full rule set available on demand."
	}
}

// EstimateTokens estimates tokens from text length.
// Uses rough 4 chars per token approximation, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// roundDown truncates to one decimal. The reported figure is fed back as the
// next call's input, so it must never land above a bracket threshold the
// unrounded value was below.
func roundDown(p float64) float64 {
	return math.Floor(p*10+1e-9) / 10
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
