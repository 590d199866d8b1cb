package patch

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"timerfix/internal/classfile"
	"timerfix/internal/config"
)

// Patcher rewrites one method of one class.
type Patcher interface {
	Category() config.Category
	Target() config.Method
	Patch(cf *classfile.ClassFile) (*Report, error)
}

// Report is what a patcher did to a class.
type Report struct {
	Category config.Category `json:"category"`
	Class    string          `json:"class"`
	Method   string          `json:"method"`
	Binding  Binding         `json:"-"`
	Vars     string          `json:"vars"`
	Hook     uint16          `json:"hook_index"`
	Regions  []PatchedRegion `json:"regions"`
}

// FlattenPatcher applies a FlattenPass to its target method.
type FlattenPatcher struct {
	target config.Method
	pass   FlattenPass
}

// NewFlattenPatcher builds the FLATTEN patcher from its configuration.
func NewFlattenPatcher(f config.FlattenTarget, logger *log.Logger) *FlattenPatcher {
	return &FlattenPatcher{
		target: f.Target,
		pass: FlattenPass{
			Hook:     Symbol{Class: f.Hook.Class, Name: f.Hook.Name, Descriptor: f.Hook.Descriptor},
			Classify:  Symbol{Name: f.Classify},
			Accessor:  Symbol{Name: f.Accessor},
			Separator: Symbol{Name: f.Separator},
			Logger:    logger,
		},
	}
}

func (p *FlattenPatcher) Category() config.Category { return config.Flatten }
func (p *FlattenPatcher) Target() config.Method     { return p.target }

// Patch runs the pass over the target method and stores the new code. On
// error the method's code is unchanged.
func (p *FlattenPatcher) Patch(cf *classfile.ClassFile) (*Report, error) {
	m, err := cf.Method(p.target.Name, p.target.Descriptor)
	if err != nil {
		return nil, err
	}
	code, err := cf.Code(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.target, err)
	}
	res, err := p.pass.Run(code, cf.Pool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.target, err)
	}
	if err := cf.SetCode(m, code); err != nil {
		return nil, err
	}
	return &Report{
		Category: config.Flatten,
		Class:    classfile.DottedName(p.target.Class),
		Method:   p.target.Name + p.target.Descriptor,
		Binding:  res.Binding,
		Vars:     res.Binding.String(),
		Hook:     res.Hook,
		Regions:  res.Regions,
	}, nil
}

// Registry holds the patchers for the enabled categories.
type Registry struct {
	patchers    []Patcher
	unsupported []config.Category
}

// NewRegistry builds patchers for every enabled category that can be applied
// in place. Other enabled categories, and categories whose tuning settings
// were set in the file, are logged and listed by Unsupported.
func NewRegistry(cfg config.Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger.Info("enabled patches", "categories", cfg.Patches())

	r := &Registry{}
	for _, cat := range config.Categories {
		settings := cfg.Settings(cat)
		switch {
		case cat == config.Flatten && cfg.Enabled(cat):
			r.patchers = append(r.patchers, NewFlattenPatcher(cfg.Flatten, logger))
			continue
		case cfg.Enabled(cat):
			logger.Warn("patch category needs a growing rewrite, skipping", "category", cat)
		case len(settings) > 0:
			logger.Warn("settings have no effect, category has no patcher", "category", cat, "settings", settings)
		default:
			continue
		}
		if cat == config.Spells && len(cfg.Blacklist()) > 0 {
			logger.Warn("spell blacklist ignored", "spells", cfg.Blacklist())
		}
		r.unsupported = append(r.unsupported, cat)
	}
	return r
}

// NewRegistryWith returns a registry over the given patchers.
func NewRegistryWith(patchers ...Patcher) *Registry {
	return &Registry{patchers: patchers}
}

func (r *Registry) Patchers() []Patcher {
	return r.patchers
}

func (r *Registry) Unsupported() []config.Category {
	return r.unsupported
}

// For returns the patchers whose target is the class with the given dotted
// or internal name.
func (r *Registry) For(class string) []Patcher {
	want := classfile.InternalName(class)
	var out []Patcher
	for _, p := range r.patchers {
		if classfile.InternalName(p.Target().Class) == want {
			out = append(out, p)
		}
	}
	return out
}

// Targets returns the internal names of every targeted class.
func (r *Registry) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.patchers {
		n := classfile.InternalName(p.Target().Class)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// PatchClass applies every patcher that targets cf. It stops at the first
// failure; cf must then be discarded, since earlier patchers may already
// have changed it.
func (r *Registry) PatchClass(cf *classfile.ClassFile) ([]Report, error) {
	name, err := cf.Name()
	if err != nil {
		return nil, err
	}
	patchers := r.For(name)
	if len(patchers) == 0 {
		return nil, fmt.Errorf("%w: no enabled patch targets %s", ErrUnsupportedPatch, name)
	}
	reports := make([]Report, 0, len(patchers))
	for _, p := range patchers {
		rep, err := p.Patch(cf)
		if err != nil {
			return nil, fmt.Errorf("%s patch: %w", p.Category(), err)
		}
		reports = append(reports, *rep)
	}
	return reports, nil
}
