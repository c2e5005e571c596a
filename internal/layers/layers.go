// Package layers implements the eight rule layers of the synapse pipeline.
//
// Layers run strictly in index order, L0 through L7. Each one reads the shared
// Context, including every result produced by earlier layers, and returns a
// Result or nil when it has nothing to contribute. A nil result is never an
// error: inactive domains, unmatched triggers and missing files all resolve to
// "no contribution".
package layers

import (
	"path/filepath"
	"time"

	contextbudget "github.com/riaworks/aios-core-sub000/internal/context"
	"github.com/riaworks/aios-core-sub000/internal/manifest"
	"github.com/riaworks/aios-core-sub000/internal/session"
	"github.com/riaworks/aios-core-sub000/internal/squad"
)

// Layer indexes.
const (
	LayerConstitution = iota
	LayerGlobal
	LayerAgent
	LayerWorkflow
	LayerTask
	LayerSquad
	LayerKeyword
	LayerCommands
)

// Count is the number of pipeline layers.
const Count = 8

// Metadata keys shared across layers.
const (
	MetaSource            = "source"
	MetaFiles             = "files"
	MetaDomains           = "domains"
	MetaNonNegotiable     = "non_negotiable"
	MetaAgentID           = "agent_id"
	MetaWorkflowID        = "workflow_id"
	MetaTaskID            = "task_id"
	MetaSquadsFound       = "squads_found"
	MetaDomainsLoaded     = "domains_loaded"
	MetaSourceDomains     = "source_domains"
	MetaActiveSquad       = "active_squad"
	MetaCacheHit          = "cache_hit"
	MetaMatchedDomains    = "matched_domains"
	MetaSkippedDuplicates = "skipped_duplicates"
	MetaCommands          = "commands"
)

// ConstitutionDomain and CommandsDomain are the manifest domains with fixed
// roles in the pipeline.
const (
	ConstitutionDomain = "CONSTITUTION"
	CommandsDomain     = "COMMANDS"
)

// Context is the shared, read-only input of one pipeline run.
type Context struct {
	Prompt      string
	Session     *session.Session
	Manifest    *manifest.Manifest
	SynapseRoot string
	SquadsRoot  string
	Bracket     contextbudget.BracketInfo

	// Previous holds the non-nil results of earlier layers, in layer order.
	Previous []*Result

	// SquadCache backs L5 discovery. Nil means a default cache under
	// SynapseRoot.
	SquadCache *squad.Cache
}

// Result is what one layer contributes.
type Result struct {
	Layer    int            `json:"layer"`
	Name     string         `json:"name"`
	Rules    []string       `json:"rules"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Strings returns a string-slice metadata value or nil.
func (r *Result) Strings(key string) []string {
	if r == nil {
		return nil
	}
	v, _ := r.Metadata[key].([]string)
	return v
}

// Bool returns a bool metadata value.
func (r *Result) Bool(key string) bool {
	if r == nil {
		return false
	}
	v, _ := r.Metadata[key].(bool)
	return v
}

// Processor is one pipeline layer.
type Processor interface {
	Name() string
	Index() int
	Timeout() time.Duration
	Process(lc *Context) (*Result, error)
}

// Default returns the fixed L0 to L7 pipeline.
func Default() []Processor {
	return []Processor{
		Constitution{},
		Global{},
		Agent{},
		Workflow{},
		Task{},
		Squad{},
		Keyword{},
		Commands{},
	}
}

// DefaultTimeouts returns the per-layer budgets keyed by layer index.
func DefaultTimeouts() map[int]time.Duration {
	out := make(map[int]time.Duration, Count)
	for _, p := range Default() {
		out[p.Index()] = p.Timeout()
	}
	return out
}

// resolve returns the path of a domain file under root.
func resolve(root, file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(root, file)
}

// tier is the tier qualifier used for tiered domain files.
func (lc *Context) tier() string {
	return string(lc.Bracket.Bracket)
}

// loadDomains loads the rules of each domain, in order. Domains with no rules
// are left out of the returned names and files.
func (lc *Context) loadDomains(domains []*manifest.DomainConfig) (rules, names, files []string, err error) {
	for _, d := range domains {
		path := resolve(lc.SynapseRoot, d.File)
		got, loadErr := manifest.LoadDomainFile(path, lc.tier())
		if loadErr != nil {
			return nil, nil, nil, loadErr
		}
		if len(got) == 0 {
			continue
		}
		rules = append(rules, got...)
		names = append(names, d.Name)
		files = append(files, path)
	}
	return rules, names, files, nil
}

// triggered returns the active domains whose trigger, as picked by field,
// matches value.
func triggered(m *manifest.Manifest, value string, field func(*manifest.DomainConfig) string) []*manifest.DomainConfig {
	if value == "" {
		return nil
	}
	var out []*manifest.DomainConfig
	for _, d := range m.Ordered() {
		if !d.Active() {
			continue
		}
		if t := field(d); t != "" && t == value {
			out = append(out, d)
		}
	}
	return out
}

// domainResult builds the common result shape of the trigger layers.
func domainResult(layer int, name, source string, rules, names, files []string) *Result {
	if len(rules) == 0 {
		return nil
	}
	return &Result{
		Layer: layer,
		Name:  name,
		Rules: rules,
		Metadata: map[string]any{
			MetaSource:  source,
			MetaDomains: names,
			MetaFiles:   files,
		},
	}
}
