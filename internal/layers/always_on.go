package layers

import (
	"time"

	"github.com/riaworks/aios-core-sub000/internal/manifest"
)

// Constitution is L0. It ignores session state and loads the constitution
// domain. When the manifest marks it non-negotiable, the formatter never
// drops it.
type Constitution struct{}

func (Constitution) Name() string           { return "constitution" }
func (Constitution) Index() int             { return LayerConstitution }
func (Constitution) Timeout() time.Duration { return 5 * time.Millisecond }

func (Constitution) Process(lc *Context) (*Result, error) {
	d := lc.Manifest.Domain(ConstitutionDomain)
	if !d.Active() {
		return nil, nil
	}
	rules, names, files, err := lc.loadDomains([]*manifest.DomainConfig{d})
	if err != nil {
		return nil, err
	}
	res := domainResult(LayerConstitution, "constitution", "manifest", rules, names, files)
	if res != nil {
		res.Metadata[MetaNonNegotiable] = d.NonNegotiable
	}
	return res, nil
}

// Global is L1: every active always-on domain except the constitution, in
// manifest order.
type Global struct{}

func (Global) Name() string           { return "global" }
func (Global) Index() int             { return LayerGlobal }
func (Global) Timeout() time.Duration { return 10 * time.Millisecond }

func (Global) Process(lc *Context) (*Result, error) {
	var domains []*manifest.DomainConfig
	for _, d := range lc.Manifest.Ordered() {
		if d.Name == ConstitutionDomain || !d.Active() || !d.AlwaysOn {
			continue
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return nil, nil
	}
	rules, names, files, err := lc.loadDomains(domains)
	if err != nil {
		return nil, err
	}
	return domainResult(LayerGlobal, "global", "manifest", rules, names, files), nil
}
