package catalogue

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

// Engine applies every definition of a registry to call events.
type Engine struct {
	reg *Registry
}

// NewEngine returns an engine over reg.
func NewEngine(reg *Registry) *Engine {
	return &Engine{reg: reg}
}

// Registry returns the registry the engine evaluates.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Evaluate scores ev under version using the version's default calc profile.
func (e *Engine) Evaluate(ev calls.Event, version string) ([]MetricValue, error) {
	v, err := e.reg.Version(version)
	if err != nil {
		return nil, err
	}
	return e.EvaluateProfile(ev, version, v.Selector)
}

// EvaluateProfile scores ev under version with the named calc-profile
// selector. It returns one value per definition in registry order, or an
// error wrapping ErrCatalogueBug when any rule misbehaves. Values from a
// failed evaluation are never returned.
func (e *Engine) EvaluateProfile(ev calls.Event, version, profile string) ([]MetricValue, error) {
	v, err := e.reg.Version(version)
	if err != nil {
		return nil, err
	}
	sel, err := e.reg.Selector(profile)
	if err != nil {
		return nil, err
	}
	ctx := sel.Resolve(ev.OccurredAt)
	rc := RuleContext{
		Version:   v.Tag,
		Context:   ctx,
		Constants: v.ConstantsFor(ctx),
	}

	out := make([]MetricValue, 0, len(e.reg.defs))
	for _, def := range e.reg.defs {
		val, err := apply(def, ev, rc)
		if err != nil {
			return nil, fmt.Errorf("%w: metric %s event %d: %v", ErrCatalogueBug, def.Code, ev.ID, err)
		}
		out = append(out, MetricValue{
			EventID: ev.ID,
			Code:    def.Code,
			Group:   def.Group,
			Version: v.Tag,
			Numeric: val.Numeric,
			Label:   val.Label,
			Payload: val.Payload,
			Method:  def.Method,
			Context: ctx,
		})
	}
	return out, nil
}

func apply(def Definition, ev calls.Event, rc RuleContext) (val Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	val = def.Rule(ev, rc)
	return val, validate(def, val)
}

// validate checks val against the definition's shape and range.
func validate(def Definition, val Value) error {
	hasNum := val.Numeric != nil
	hasLabel := val.Label != nil
	hasPayload := len(val.Payload) > 0

	switch def.Shape {
	case ShapeNumeric:
		if !hasNum || hasLabel || hasPayload {
			return fmt.Errorf("shape %s: want number only", def.Shape)
		}
	case ShapeLabel:
		if hasNum || !hasLabel || hasPayload {
			return fmt.Errorf("shape %s: want label only", def.Shape)
		}
		if *val.Label == "" {
			return fmt.Errorf("empty label")
		}
	case ShapeScoredLabel:
		if !hasNum || !hasLabel || hasPayload {
			return fmt.Errorf("shape %s: want number and label", def.Shape)
		}
		if *val.Label == "" {
			return fmt.Errorf("empty label")
		}
	case ShapeStructured:
		if hasNum || hasLabel || !hasPayload {
			return fmt.Errorf("shape %s: want payload only", def.Shape)
		}
		if !json.Valid(val.Payload) {
			return fmt.Errorf("payload is not valid JSON")
		}
	default:
		return fmt.Errorf("unknown shape %q", def.Shape)
	}

	if hasNum {
		n := *val.Numeric
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("value %v is not finite", n)
		}
		if n < def.Range[0] || n > def.Range[1] {
			return fmt.Errorf("value %v outside [%v, %v]", n, def.Range[0], def.Range[1])
		}
	}
	return nil
}
