package catalogue

import (
	"fmt"
	"sort"
)

// DefaultVersionTag is the tag of the built-in heuristic rule set.
const DefaultVersionTag = "rules_v1"

// Version is a catalogue version: a tag, the constants its rules read, and
// optional per-context replacements of those constants.
type Version struct {
	Tag       string
	Selector  string
	Constants Constants
	// ByContext holds complete constant sets for contexts that differ from
	// the base set.
	ByContext map[Context]Constants
}

// DefaultVersion returns the built-in version with no context overrides.
func DefaultVersion() Version {
	return Version{
		Tag:       DefaultVersionTag,
		Selector:  SelectorShift,
		Constants: DefaultConstants(),
	}
}

// ConstantsFor returns the constants rules should read in ctx.
func (v Version) ConstantsFor(ctx Context) Constants {
	if c, ok := v.ByContext[ctx]; ok {
		return c
	}
	return v.Constants
}

// VersionSpec is the config form of a derived version.
type VersionSpec struct {
	Tag       string
	Base      string
	Selector  string
	Constants map[string]float64
	Contexts  map[string]map[string]float64
}

// Derive builds a new version from base with spec's overrides applied. Context
// overrides are applied on top of the derived base constants.
func Derive(base Version, spec VersionSpec) (Version, error) {
	if spec.Tag == "" {
		return Version{}, fmt.Errorf("version tag is required")
	}
	consts, err := base.Constants.With(spec.Constants)
	if err != nil {
		return Version{}, fmt.Errorf("version %s: %w", spec.Tag, err)
	}
	v := Version{
		Tag:       spec.Tag,
		Selector:  base.Selector,
		Constants: consts,
	}
	if spec.Selector != "" {
		v.Selector = spec.Selector
	}

	names := make([]string, 0, len(spec.Contexts))
	for name := range spec.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx := Context(name)
		switch ctx {
		case ContextDefault, ContextNightShift, ContextWeekend:
		default:
			return Version{}, fmt.Errorf("version %s: unknown context %q", spec.Tag, name)
		}
		c, err := consts.With(spec.Contexts[name])
		if err != nil {
			return Version{}, fmt.Errorf("version %s context %s: %w", spec.Tag, name, err)
		}
		if v.ByContext == nil {
			v.ByContext = make(map[Context]Constants)
		}
		v.ByContext[ctx] = c
	}
	return v, nil
}
