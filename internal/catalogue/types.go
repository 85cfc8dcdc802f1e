// Package catalogue holds the versioned registry of call scoring rules and the
// engine that applies them to call events.
package catalogue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

// Group classifies a metric definition.
type Group string

const (
	GroupOperational Group = "operational"
	GroupConversion  Group = "conversion"
	GroupQuality     Group = "quality"
	GroupRisk        Group = "risk"
	GroupForecast    Group = "forecast"
	GroupAux         Group = "aux"
)

// Shape is the declared form of a metric's value.
type Shape string

const (
	// ShapeNumeric carries only a number.
	ShapeNumeric Shape = "numeric"
	// ShapeLabel carries only a label.
	ShapeLabel Shape = "label"
	// ShapeScoredLabel carries a number and the label derived from it.
	ShapeScoredLabel Shape = "scored_label"
	// ShapeStructured carries a JSON payload.
	ShapeStructured Shape = "structured"
)

// Method tags how a value was produced. Only rule and meta exist today;
// tree and model are reserved for a trained successor behind the same
// RuleFunc signature.
type Method string

const (
	MethodRule  Method = "rule"
	MethodMeta  Method = "meta"
	MethodTree  Method = "tree"
	MethodModel Method = "model"
)

// Context is the calc-profile label a selector resolves from event time.
type Context string

const (
	ContextDefault    Context = "default"
	ContextNightShift Context = "night_shift"
	ContextWeekend    Context = "weekend"
)

var (
	// ErrCatalogueBug reports a rule that panicked or returned a value that
	// does not match its declared shape or range.
	ErrCatalogueBug = errors.New("catalogue bug")
	// ErrUnknownVersion reports a catalogue version tag that is not registered.
	ErrUnknownVersion = errors.New("unknown catalogue version")
	// ErrUnknownSelector reports a calc-profile selector that is not registered.
	ErrUnknownSelector = errors.New("unknown calc profile")
)

// Value is what a rule returns. Exactly the fields required by the
// definition's Shape are set.
type Value struct {
	Numeric *float64
	Label   *string
	Payload json.RawMessage
}

// RuleContext is everything besides the event that a rule may read.
type RuleContext struct {
	Version   string
	Context   Context
	Constants Constants
}

// RuleFunc is a pure scoring rule: no I/O, no clock, no randomness.
type RuleFunc func(ev calls.Event, rc RuleContext) Value

// Definition describes one metric of the catalogue.
type Definition struct {
	Code   string
	Group  Group
	Shape  Shape
	Method Method
	// Range bounds the numeric part of the value, inclusive.
	Range       [2]float64
	Description string
	Rule        RuleFunc
}

// MetricValue is the persisted result of one definition evaluated against
// one event under one catalogue version.
type MetricValue struct {
	EventID   int64           `json:"event_id"`
	Code      string          `json:"metric_code"`
	Group     Group           `json:"metric_group"`
	Version   string          `json:"version"`
	Numeric   *float64        `json:"value_numeric,omitempty"`
	Label     *string         `json:"value_label,omitempty"`
	Payload   json.RawMessage `json:"value_json,omitempty"`
	Method    Method          `json:"calc_method"`
	Context   Context         `json:"calc_context"`
	Source    string          `json:"calc_source,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

func num(v float64) Value {
	return Value{Numeric: &v}
}

func label(s string) Value {
	return Value{Label: &s}
}

func scored(v float64, s string) Value {
	return Value{Numeric: &v, Label: &s}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
