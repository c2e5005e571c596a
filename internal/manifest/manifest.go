// Package manifest parses the synapse manifest and the domain rule files it
// points to.
//
// The manifest is a flat KEY=VALUE file. Each key either configures the whole
// engine (DEVMODE, GLOBAL_EXCLUDE) or one domain, in which case the key is the
// domain name followed by a recognized suffix:
//
//	CONSTITUTION_STATE=active
//	CONSTITUTION_ALWAYS_ON=true
//	CONSTITUTION_NON_NEGOTIABLE=true
//	AGENT_DEV_AGENT_TRIGGER=dev
//	TESTING_RECALL=test,coverage
//
// Unknown keys and malformed lines are ignored. A missing manifest is a valid,
// empty manifest.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Domain states.
const (
	StateActive   = "active"
	StateInactive = "inactive"
)

// Extends modes for squad domains.
const (
	ExtendsNone     = "none"
	ExtendsExtend   = "extend"
	ExtendsOverride = "override"
)

// Global keys handled outside the domain map.
const (
	keyDevmode       = "DEVMODE"
	keyGlobalExclude = "GLOBAL_EXCLUDE"
)

// DomainConfig describes one named bundle of rules.
type DomainConfig struct {
	Name            string   `json:"name"`
	State           string   `json:"state"`
	AlwaysOn        bool     `json:"always_on,omitempty"`
	NonNegotiable   bool     `json:"non_negotiable,omitempty"`
	AgentTrigger    string   `json:"agent_trigger,omitempty"`
	WorkflowTrigger string   `json:"workflow_trigger,omitempty"`
	TaskTrigger     string   `json:"task_trigger,omitempty"`
	Recall          []string `json:"recall,omitempty"`
	Exclude         []string `json:"exclude,omitempty"`
	Extends         string   `json:"extends,omitempty"`
	File            string   `json:"file"`
}

// Active reports whether the domain may contribute rules.
func (d *DomainConfig) Active() bool {
	return d != nil && d.State != StateInactive
}

// Manifest is the parsed manifest. It is built once per invocation and not
// mutated afterwards.
type Manifest struct {
	Devmode       bool                     `json:"devmode"`
	GlobalExclude []string                 `json:"global_exclude,omitempty"`
	Domains       map[string]*DomainConfig `json:"domains"`

	// Order lists domain names in first-declaration order.
	Order []string `json:"order,omitempty"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Domains: make(map[string]*DomainConfig)}
}

// Domain returns the named domain or nil.
func (m *Manifest) Domain(name string) *DomainConfig {
	if m == nil {
		return nil
	}
	return m.Domains[name]
}

// Ordered returns domains in declaration order.
func (m *Manifest) Ordered() []*DomainConfig {
	if m == nil {
		return nil
	}
	out := make([]*DomainConfig, 0, len(m.Order))
	for _, name := range m.Order {
		if d, ok := m.Domains[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// domain returns the named domain, creating it with defaults if needed.
func (m *Manifest) domain(name string) *DomainConfig {
	if d, ok := m.Domains[name]; ok {
		return d
	}
	d := &DomainConfig{
		Name:  name,
		State: StateActive,
		File:  DefaultFileName(name),
	}
	m.Domains[name] = d
	m.Order = append(m.Order, name)
	return d
}

// DefaultFileName maps a domain name to its default rule file name:
// lower-cased with underscores replaced by hyphens.
func DefaultFileName(domain string) string {
	return strings.ReplaceAll(strings.ToLower(domain), "_", "-")
}

// suffixes are matched longest first so that, for example, _AGENT_TRIGGER
// wins over a hypothetical _TRIGGER.
var suffixes = []struct {
	suffix string
	apply  func(d *DomainConfig, value string)
}{
	{"_WORKFLOW_TRIGGER", func(d *DomainConfig, v string) { d.WorkflowTrigger = v }},
	{"_NON_NEGOTIABLE", func(d *DomainConfig, v string) { d.NonNegotiable = parseBool(v) }},
	{"_AGENT_TRIGGER", func(d *DomainConfig, v string) { d.AgentTrigger = v }},
	{"_TASK_TRIGGER", func(d *DomainConfig, v string) { d.TaskTrigger = v }},
	{"_ALWAYS_ON", func(d *DomainConfig, v string) { d.AlwaysOn = parseBool(v) }},
	{"_EXTENDS", func(d *DomainConfig, v string) { d.Extends = strings.ToLower(v) }},
	{"_EXCLUDE", func(d *DomainConfig, v string) { d.Exclude = SplitList(v) }},
	{"_RECALL", func(d *DomainConfig, v string) { d.Recall = SplitList(v) }},
	{"_STATE", func(d *DomainConfig, v string) { d.State = parseState(v) }},
	{"_FILE", func(d *DomainConfig, v string) {
		if v != "" {
			d.File = v
		}
	}},
}

// Parse builds a manifest from raw text. It never fails: comments, blank
// lines, lines without '=' and unknown keys are skipped.
func Parse(text string) *Manifest {
	m := New()

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := splitAssignment(scanner.Text())
		if !ok {
			continue
		}
		m.apply(key, value)
	}

	return m
}

// Load reads and parses the manifest at path. A missing file yields an empty
// manifest and a nil error.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return New(), fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

func (m *Manifest) apply(key, value string) {
	switch key {
	case keyDevmode:
		m.Devmode = parseBool(value)
		return
	case keyGlobalExclude:
		m.GlobalExclude = SplitList(value)
		return
	}

	for _, s := range suffixes {
		if !strings.HasSuffix(key, s.suffix) {
			continue
		}
		name := strings.TrimSuffix(key, s.suffix)
		if name == "" {
			return
		}
		s.apply(m.domain(name), value)
		return
	}
}

// splitAssignment splits a line on its first '='. Comments, blank lines and
// lines without '=' or with an empty key are rejected.
func splitAssignment(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	idx := strings.IndexByte(line, '=')
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// SplitList splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func parseState(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), StateInactive) {
		return StateInactive
	}
	return StateActive
}
