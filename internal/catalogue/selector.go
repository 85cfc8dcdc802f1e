package catalogue

import (
	"fmt"
	"time"
)

// Built-in calc-profile selector names.
const (
	SelectorShift = "shift_v1"
	SelectorFlat  = "flat_v1"
)

// Selector resolves a calc-profile context from an event's timestamp. It is
// a pure function of that timestamp and the selector's fixed location.
type Selector struct {
	Name string

	loc        *time.Location
	night      bool
	nightStart int
	nightEnd   int
	weekends   bool
}

// ShiftSelector marks 22:00-05:59 as night_shift and Saturday/Sunday as
// weekend, in loc. Night takes precedence over weekend.
func ShiftSelector(loc *time.Location) Selector {
	if loc == nil {
		loc = time.UTC
	}
	return Selector{
		Name:       SelectorShift,
		loc:        loc,
		night:      true,
		nightStart: 22,
		nightEnd:   6,
		weekends:   true,
	}
}

// FlatSelector resolves every event to the default context.
func FlatSelector() Selector {
	return Selector{Name: SelectorFlat, loc: time.UTC}
}

// SelectorByName returns a built-in selector evaluated in loc.
func SelectorByName(name string, loc *time.Location) (Selector, error) {
	switch name {
	case SelectorShift:
		return ShiftSelector(loc), nil
	case SelectorFlat:
		return FlatSelector(), nil
	}
	return Selector{}, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
}

// Resolve returns the context label for t.
func (s Selector) Resolve(t time.Time) Context {
	if s.loc != nil {
		t = t.In(s.loc)
	}
	if s.night {
		h := t.Hour()
		if h >= s.nightStart || h < s.nightEnd {
			return ContextNightShift
		}
	}
	if s.weekends {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return ContextWeekend
		}
	}
	return ContextDefault
}
