package layers

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/riaworks/aios-core-sub000/internal/manifest"
)

// Keyword is L6. It matches the prompt against each domain's recall keywords
// and skips domains an earlier layer already delivered.
type Keyword struct{}

func (Keyword) Name() string           { return "keyword" }
func (Keyword) Index() int             { return LayerKeyword }
func (Keyword) Timeout() time.Duration { return 15 * time.Millisecond }

func (Keyword) Process(lc *Context) (*Result, error) {
	prompt := strings.ToLower(strings.TrimSpace(lc.Prompt))
	if prompt == "" || lc.Manifest == nil {
		return nil, nil
	}
	if containsAny(prompt, lc.Manifest.GlobalExclude) {
		return nil, nil
	}

	seen := newDeliveredSet(lc)

	var matched, skipped, files, rules []string
	for _, d := range lc.Manifest.Ordered() {
		if !d.Active() || len(d.Recall) == 0 {
			continue
		}
		if !containsAny(prompt, d.Recall) || containsAny(prompt, d.Exclude) {
			continue
		}
		path := resolve(lc.SynapseRoot, d.File)
		if seen.has(d, path) {
			skipped = append(skipped, d.Name)
			continue
		}
		got, err := manifest.LoadDomainFile(path, lc.tier())
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			continue
		}
		matched = append(matched, d.Name)
		files = append(files, path)
		rules = append(rules, got...)
	}

	if len(matched) == 0 && len(skipped) == 0 {
		return nil, nil
	}
	return &Result{
		Layer: LayerKeyword,
		Name:  "keyword",
		Rules: rules,
		Metadata: map[string]any{
			MetaSource:            "recall",
			MetaMatchedDomains:    matched,
			MetaSkippedDuplicates: skipped,
			MetaFiles:             files,
		},
	}, nil
}

// containsAny reports whether text contains any keyword as a literal,
// case-insensitive substring. text must already be lower-cased.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// deliveredSet tracks what earlier layers already emitted. Squad domains
// count under their namespaced names only, so a project domain sharing a
// squad domain's bare name still fires unless it is the same file.
type deliveredSet struct {
	files   map[string]bool
	domains map[string]bool
	agent   string
}

func newDeliveredSet(lc *Context) deliveredSet {
	s := deliveredSet{
		files:   make(map[string]bool),
		domains: make(map[string]bool),
		agent:   lc.Session.AgentID(),
	}
	for _, r := range lc.Previous {
		for _, f := range r.Strings(MetaFiles) {
			s.files[filepath.Clean(f)] = true
		}
		for _, key := range []string{MetaDomains, MetaDomainsLoaded} {
			for _, name := range r.Strings(key) {
				s.domains[name] = true
			}
		}
	}
	return s
}

func (s deliveredSet) has(d *manifest.DomainConfig, path string) bool {
	if s.files[filepath.Clean(path)] || s.domains[d.Name] {
		return true
	}
	return s.agent != "" && d.AgentTrigger == s.agent
}
