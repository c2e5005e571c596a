package layers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/riaworks/aios-core-sub000/internal/manifest"
	"github.com/riaworks/aios-core-sub000/internal/squad"
)

// Squad is L5. It discovers squads through the TTL cache and emits their
// domain rules, active squad first. Domain names are namespaced per squad.
type Squad struct{}

func (Squad) Name() string           { return "squad" }
func (Squad) Index() int             { return LayerSquad }
func (Squad) Timeout() time.Duration { return 20 * time.Millisecond }

func (Squad) Process(lc *Context) (*Result, error) {
	if lc.SquadsRoot == "" {
		return nil, nil
	}
	info, err := os.Stat(lc.SquadsRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	cache := lc.SquadCache
	if cache == nil {
		cache = squad.NewCache(lc.SynapseRoot, squad.DefaultTTL)
	}
	entry, hit, err := cache.Discover(context.Background(), lc.SquadsRoot)
	if err != nil {
		return nil, err
	}
	found := entry.Names()
	if len(found) == 0 {
		return nil, nil
	}

	agent := lc.Session.AgentID()
	active := lc.Session.SquadName()

	var rules, loaded, sourceDomains, files []string
	for _, name := range entry.Prioritized(active) {
		dir := entry.Dir(name)
		for _, d := range entry.Manifests[name].Ordered() {
			if !squadDomainApplies(d, agent) {
				continue
			}
			path := filepath.Join(dir, d.File)
			if filepath.IsAbs(d.File) {
				path = d.File
			}
			got, err := manifest.LoadDomainFile(path, lc.tier())
			if err != nil {
				return nil, err
			}
			if len(got) == 0 {
				continue
			}
			rules = append(rules, got...)
			loaded = append(loaded, squad.Namespace(name, d.Name))
			sourceDomains = append(sourceDomains, d.Name)
			files = append(files, path)
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}

	return &Result{
		Layer: LayerSquad,
		Name:  "squad",
		Rules: rules,
		Metadata: map[string]any{
			MetaSource:        "squad_discovery",
			MetaSquadsFound:   found,
			MetaActiveSquad:   active,
			MetaDomainsLoaded: loaded,
			MetaSourceDomains: sourceDomains,
			MetaFiles:         files,
			MetaCacheHit:      hit,
		},
	}, nil
}

func squadDomainApplies(d *manifest.DomainConfig, agent string) bool {
	if !d.Active() || d.Extends == manifest.ExtendsNone {
		return false
	}
	if d.AgentTrigger != "" && d.AgentTrigger != agent {
		return false
	}
	return true
}
