package catalogue

import (
	"fmt"
	"sort"
	"time"
)

// Registry is the immutable set of metric definitions, versions and
// selectors. Build it once and share it.
type Registry struct {
	defs      []Definition
	byCode    map[string]int
	versions  map[string]Version
	selectors map[string]Selector
}

// NewRegistry validates and freezes defs, versions and selectors. Duplicate
// codes, tags or selector names are rejected.
func NewRegistry(defs []Definition, versions []Version, selectors []Selector) (*Registry, error) {
	r := &Registry{
		defs:      make([]Definition, 0, len(defs)),
		byCode:    make(map[string]int, len(defs)),
		versions:  make(map[string]Version, len(versions)),
		selectors: make(map[string]Selector, len(selectors)),
	}
	for _, d := range defs {
		if d.Code == "" {
			return nil, fmt.Errorf("metric definition without code")
		}
		if d.Rule == nil {
			return nil, fmt.Errorf("metric %s: no rule", d.Code)
		}
		if _, dup := r.byCode[d.Code]; dup {
			return nil, fmt.Errorf("duplicate metric code %q", d.Code)
		}
		if d.Range[0] > d.Range[1] {
			return nil, fmt.Errorf("metric %s: empty range", d.Code)
		}
		r.byCode[d.Code] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	for _, s := range selectors {
		if _, dup := r.selectors[s.Name]; dup {
			return nil, fmt.Errorf("duplicate calc profile %q", s.Name)
		}
		r.selectors[s.Name] = s
	}
	for _, v := range versions {
		if _, dup := r.versions[v.Tag]; dup {
			return nil, fmt.Errorf("duplicate catalogue version %q", v.Tag)
		}
		if _, ok := r.selectors[v.Selector]; !ok {
			return nil, fmt.Errorf("version %s: %w: %q", v.Tag, ErrUnknownSelector, v.Selector)
		}
		r.versions[v.Tag] = v
	}
	return r, nil
}

// Builtin returns a registry with the standard definitions, the default
// version plus extra, and both built-in selectors evaluated in loc. Extra
// versions may derive from each other in any order.
func Builtin(loc *time.Location, extra ...VersionSpec) (*Registry, error) {
	base := DefaultVersion()
	built := map[string]Version{base.Tag: base}
	versions := []Version{base}

	pending := extra
	for len(pending) > 0 {
		var next []VersionSpec
		for _, spec := range pending {
			parentTag := spec.Base
			if parentTag == "" {
				parentTag = base.Tag
			}
			parent, ok := built[parentTag]
			if !ok {
				next = append(next, spec)
				continue
			}
			v, err := Derive(parent, spec)
			if err != nil {
				return nil, err
			}
			built[v.Tag] = v
			versions = append(versions, v)
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("version %s: %w: base %q", next[0].Tag, ErrUnknownVersion, next[0].Base)
		}
		pending = next
	}
	return NewRegistry(Definitions(), versions, []Selector{ShiftSelector(loc), FlatSelector()})
}

// Definitions returns a copy of all definitions in registry order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Definition looks up a metric by code.
func (r *Registry) Definition(code string) (Definition, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Version looks up a catalogue version by tag.
func (r *Registry) Version(tag string) (Version, error) {
	v, ok := r.versions[tag]
	if !ok {
		return Version{}, fmt.Errorf("%w: %q", ErrUnknownVersion, tag)
	}
	return v, nil
}

// Selector looks up a calc-profile selector by name.
func (r *Registry) Selector(name string) (Selector, error) {
	s, ok := r.selectors[name]
	if !ok {
		return Selector{}, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
	}
	return s, nil
}

// VersionTags returns all registered version tags, sorted.
func (r *Registry) VersionTags() []string {
	tags := make([]string, 0, len(r.versions))
	for t := range r.versions {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// SelectorNames returns all registered selector names, sorted.
func (r *Registry) SelectorNames() []string {
	names := make([]string, 0, len(r.selectors))
	for n := range r.selectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
