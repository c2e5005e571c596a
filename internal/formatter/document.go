// Package formatter renders pipeline output: the <synapse-rules> document
// injected into the agent's context, plus the tables shared by devmode and
// diagnostics.
package formatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/layers"
	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// Document wrapper tags.
const (
	OpenTag  = "<synapse-rules>"
	CloseTag = "</synapse-rules>"
)

// Section names, in document order.
const (
	SectionBracket      = "CONTEXT BRACKET"
	SectionConstitution = "CONSTITUTION"
	SectionGlobal       = "GLOBAL"
	SectionAgent        = "ACTIVE AGENT"
	SectionWorkflow     = "ACTIVE WORKFLOW"
	SectionTask         = "TASK CONTEXT"
	SectionSquad        = "SQUAD"
	SectionKeyword      = "KEYWORD MATCHES"
	SectionCommands     = "STAR-COMMANDS"
	SectionMemoryHints  = "MEMORY HINTS"
	SectionDomains      = "LOADED DOMAINS"
	SectionDevmode      = "DEVMODE STATUS"
	SectionHandoff      = "HANDOFF WARNING"
)

// SectionOrder is the fixed document order.
var SectionOrder = []string{
	SectionBracket,
	SectionConstitution,
	SectionGlobal,
	SectionAgent,
	SectionWorkflow,
	SectionTask,
	SectionSquad,
	SectionKeyword,
	SectionCommands,
	SectionMemoryHints,
	SectionDomains,
	SectionDevmode,
	SectionHandoff,
}

// layerSections maps layer indexes to their sections.
var layerSections = map[int]string{
	layers.LayerConstitution: SectionConstitution,
	layers.LayerGlobal:       SectionGlobal,
	layers.LayerAgent:        SectionAgent,
	layers.LayerWorkflow:     SectionWorkflow,
	layers.LayerTask:         SectionTask,
	layers.LayerSquad:        SectionSquad,
	layers.LayerKeyword:      SectionKeyword,
	layers.LayerCommands:     SectionCommands,
}

// Input is everything one document is built from.
type Input struct {
	Bracket  contextbudget.BracketInfo
	Outcomes []layers.Outcome

	AgentID     string
	WorkflowID  string
	SquadName   string
	MemoryHints []string

	Devmode       bool
	TotalDuration time.Duration
}

// Output is a rendered document and its budget accounting.
type Output struct {
	Document   string   `json:"document"`
	Included   []string `json:"included"`
	Dropped    []string `json:"dropped,omitempty"`
	TokensUsed int      `json:"tokens_used"`
	Budget     int      `json:"budget"`
}

// section is one candidate block.
type section struct {
	name      string
	heading   string
	body      []string
	mandatory bool
	exempt    bool
	tokens    int
}

func (s *section) render() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(s.heading)
	b.WriteString("]\n")
	for _, line := range s.body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Format orders the layer output into sections, enforces the bracket's token
// budget and serializes the document. Mandatory sections are reserved first
// and never dropped. Other sections are taken in order until one does not
// fit; everything after it is dropped too. Devmode status is budget-exempt.
func Format(in Input) Output {
	candidates := buildSections(in)
	budget := in.Bracket.TokenBudget

	reserved := 0
	for _, s := range candidates {
		if s.mandatory {
			reserved += s.tokens
		}
	}

	remaining := budget - reserved
	keep := make(map[string]bool, len(candidates))
	var dropped []string
	stopped := false
	for _, s := range candidates {
		switch {
		case s.mandatory || s.exempt:
			keep[s.name] = true
		case !stopped && s.tokens <= remaining:
			keep[s.name] = true
			remaining -= s.tokens
		default:
			stopped = true
			dropped = append(dropped, s.name)
		}
	}

	out := Output{Budget: budget, Dropped: dropped}
	var kept []*section
	for _, s := range candidates {
		if !keep[s.name] || s.exempt {
			continue
		}
		kept = append(kept, s)
		out.TokensUsed += s.tokens
	}

	// Devmode reports the final accounting, so it is built last.
	if in.Devmode {
		dev := devmodeSection(in, out)
		kept = insertOrdered(kept, dev)
	}

	var b strings.Builder
	b.WriteString(OpenTag)
	b.WriteString("\n")
	for _, s := range kept {
		b.WriteString("\n")
		b.WriteString(s.render())
		out.Included = append(out.Included, s.name)
	}
	b.WriteString("\n")
	b.WriteString(CloseTag)
	b.WriteString("\n")
	out.Document = b.String()
	return out
}

func buildSections(in Input) []*section {
	results := make(map[string]*layers.Result, len(in.Outcomes))
	for _, o := range in.Outcomes {
		if o.Result != nil && len(o.Result.Rules) > 0 {
			results[layerSections[o.Layer]] = o.Result
		}
	}

	var out []*section
	add := func(s *section) {
		s.tokens = contextbudget.EstimateTokens(s.render())
		out = append(out, s)
	}

	for _, name := range SectionOrder {
		switch name {
		case SectionBracket:
			add(&section{name: name, heading: name, body: bracketBody(in.Bracket), mandatory: true})
		case SectionMemoryHints:
			if in.Bracket.NeedsMemoryHints && len(in.MemoryHints) > 0 {
				add(&section{name: name, heading: name, body: bullets(in.MemoryHints)})
			}
		case SectionDomains:
			if body := loadedDomains(in.Outcomes); len(body) > 0 {
				add(&section{name: name, heading: name, body: body})
			}
		case SectionDevmode:
			// Built after budgeting.
		case SectionHandoff:
			if in.Bracket.NeedsHandoffWarning {
				add(&section{name: name, heading: name, body: handoffBody(in.Bracket), mandatory: true})
			}
		default:
			r, ok := results[name]
			if !ok {
				continue
			}
			s := &section{name: name, heading: heading(name, r, in), body: bullets(r.Rules)}
			if name == SectionConstitution && r.Bool(layers.MetaNonNegotiable) {
				s.mandatory = true
			}
			add(s)
		}
	}
	return out
}

func heading(name string, r *layers.Result, in Input) string {
	switch name {
	case SectionConstitution:
		if r.Bool(layers.MetaNonNegotiable) {
			return name + " (NON-NEGOTIABLE)"
		}
	case SectionAgent:
		if in.AgentID != "" {
			return name + ": @" + in.AgentID
		}
	case SectionWorkflow:
		if in.WorkflowID != "" {
			return name + ": " + in.WorkflowID
		}
	case SectionSquad:
		if in.SquadName != "" {
			return name + ": " + in.SquadName
		}
	}
	return name
}

func bullets(rules []string) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = strconv.Itoa(i+1) + ". " + r
	}
	return out
}

func bracketBody(b contextbudget.BracketInfo) []string {
	return []string{
		fmt.Sprintf("%s (%.1f%% context remaining)", b.Bracket, b.ContextPercent),
		fmt.Sprintf("Token budget: %d", b.TokenBudget),
		contextbudget.Recommendation(b.Bracket),
	}
}

func handoffBody(b contextbudget.BracketInfo) []string {
	return []string{
		fmt.Sprintf("Only %.1f%% of the context window remains.", b.ContextPercent),
		"Summarize progress, record open decisions, and continue in a new session.",
	}
}

// loadedDomains lists, per layer, the domains and commands that contributed.
func loadedDomains(outcomes []layers.Outcome) []string {
	var out []string
	for _, o := range outcomes {
		r := o.Result
		if r == nil {
			continue
		}
		var names []string
		for _, key := range []string{layers.MetaDomains, layers.MetaDomainsLoaded, layers.MetaMatchedDomains} {
			names = append(names, r.Strings(key)...)
		}
		for _, c := range r.Strings(layers.MetaCommands) {
			names = append(names, "*"+c)
		}
		if len(names) == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("L%d %s: %s", o.Layer, o.Name, strings.Join(names, ", ")))
	}
	return out
}

func devmodeSection(in Input, acct Output) *section {
	body := []string{
		fmt.Sprintf("Bracket: %s | Tokens: %d/%d | Pipeline: %.2fms",
			in.Bracket.Bracket, acct.TokensUsed, acct.Budget, storage.DurationMillis(in.TotalDuration)),
	}
	if len(acct.Dropped) > 0 {
		body = append(body, "Dropped: "+strings.Join(acct.Dropped, ", "))
	}

	var buf bytes.Buffer
	tbl := NewTable(&buf, "LAYER", "STATUS", "RULES", "DURATION")
	for _, o := range in.Outcomes {
		tbl.AddRow(
			fmt.Sprintf("L%d %s", o.Layer, o.Name),
			o.Status,
			strconv.Itoa(o.Rules()),
			fmt.Sprintf("%.2fms", storage.DurationMillis(o.Duration)),
		)
	}
	if err := tbl.Render(); err == nil && buf.Len() > 0 {
		body = append(body, strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")...)
	}
	return &section{name: SectionDevmode, heading: SectionDevmode, body: body, exempt: true}
}

// insertOrdered places s among kept according to SectionOrder.
func insertOrdered(kept []*section, s *section) []*section {
	pos := orderOf(s.name)
	for i, k := range kept {
		if orderOf(k.name) > pos {
			kept = append(kept[:i], append([]*section{s}, kept[i:]...)...)
			return kept
		}
	}
	return append(kept, s)
}

func orderOf(name string) int {
	for i, n := range SectionOrder {
		if n == name {
			return i
		}
	}
	return len(SectionOrder)
}
