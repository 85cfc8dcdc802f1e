package catalogue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	defs := Definitions()
	defs = append(defs, defs[0])
	_, err := NewRegistry(defs, []Version{DefaultVersion()}, []Selector{ShiftSelector(time.UTC)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric code")

	_, err = NewRegistry(Definitions(), []Version{DefaultVersion(), DefaultVersion()}, []Selector{ShiftSelector(time.UTC)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate catalogue version")
}

func TestNewRegistryRequiresSelector(t *testing.T) {
	_, err := NewRegistry(Definitions(), []Version{DefaultVersion()}, []Selector{FlatSelector()})
	assert.True(t, errors.Is(err, ErrUnknownSelector))
}

func TestBuiltinCatalogue(t *testing.T) {
	reg, err := Builtin(time.UTC)
	require.NoError(t, err)

	defs := reg.Definitions()
	assert.Len(t, defs, 18)
	assert.Equal(t, []string{DefaultVersionTag}, reg.VersionTags())
	assert.Equal(t, []string{SelectorFlat, SelectorShift}, reg.SelectorNames())

	d, ok := reg.Definition("churn_risk_level")
	require.True(t, ok)
	assert.Equal(t, GroupRisk, d.Group)
	assert.Equal(t, ShapeScoredLabel, d.Shape)

	// Mutating the copy leaves the registry intact.
	defs[0].Code = "mutated"
	_, ok = reg.Definition("response_speed_score")
	assert.True(t, ok)
	assert.Equal(t, "response_speed_score", reg.Definitions()[0].Code)
}

func TestBuiltinDerivedVersions(t *testing.T) {
	reg, err := Builtin(time.UTC,
		VersionSpec{Tag: "rules_v2", Constants: map[string]float64{"efficiency_threshold_sec": 60}, Selector: SelectorFlat},
		VersionSpec{Tag: "rules_v3", Base: "rules_v2", Constants: map[string]float64{"speed_missed": 0}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultVersionTag, "rules_v2", "rules_v3"}, reg.VersionTags())

	v3, err := reg.Version("rules_v3")
	require.NoError(t, err)
	assert.Equal(t, 60.0, v3.Constants.EfficiencyThresholdSec)
	assert.Equal(t, 0.0, v3.Constants.SpeedMissed)
	assert.Equal(t, SelectorFlat, v3.Selector)

	_, err = Builtin(time.UTC, VersionSpec{Tag: "x", Base: "missing"})
	assert.True(t, errors.Is(err, ErrUnknownVersion))

	_, err = Builtin(time.UTC, VersionSpec{Tag: "x", Constants: map[string]float64{"no_such": 1}})
	assert.Error(t, err)

	_, err = Builtin(time.UTC, VersionSpec{Tag: "x", Contexts: map[string]map[string]float64{"holiday": {}}})
	assert.Error(t, err)
}

func TestConstantsWithDoesNotMutateReceiver(t *testing.T) {
	base := DefaultConstants()
	out, err := base.With(map[string]float64{"churn_high_min": 80})
	require.NoError(t, err)
	assert.Equal(t, 80.0, out.ChurnHighMin)
	assert.Equal(t, 70.0, base.ChurnHighMin)
	assert.Contains(t, ConstantNames(), "churn_high_min")
}

func TestShiftSelector(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	s := ShiftSelector(loc)

	tests := []struct {
		name string
		at   time.Time
		want Context
	}{
		{"weekday daytime", time.Date(2025, 3, 4, 12, 0, 0, 0, loc), ContextDefault},
		{"22:00 starts night", time.Date(2025, 3, 4, 22, 0, 0, 0, loc), ContextNightShift},
		{"05:59 still night", time.Date(2025, 3, 5, 5, 59, 0, 0, loc), ContextNightShift},
		{"06:00 is day", time.Date(2025, 3, 5, 6, 0, 0, 0, loc), ContextDefault},
		{"saturday", time.Date(2025, 3, 8, 12, 0, 0, 0, loc), ContextWeekend},
		{"saturday night", time.Date(2025, 3, 8, 23, 0, 0, 0, loc), ContextNightShift},
		{"utc instant converted", time.Date(2025, 3, 4, 20, 0, 0, 0, time.UTC), ContextNightShift},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Resolve(tt.at))
		})
	}

	assert.Equal(t, ContextDefault, FlatSelector().Resolve(time.Date(2025, 3, 8, 23, 0, 0, 0, loc)))

	_, err := SelectorByName("lunar_v1", loc)
	assert.True(t, errors.Is(err, ErrUnknownSelector))
}

func TestBuiltinResolvesBasesOutOfOrder(t *testing.T) {
	reg, err := Builtin(time.UTC,
		VersionSpec{Tag: "child", Base: "parent", Constants: map[string]float64{"speed_missed": 5}},
		VersionSpec{Tag: "parent", Constants: map[string]float64{"speed_answered": 99}},
	)
	require.NoError(t, err)
	child, err := reg.Version("child")
	require.NoError(t, err)
	assert.Equal(t, 99.0, child.Constants.SpeedAnswered)
	assert.Equal(t, 5.0, child.Constants.SpeedMissed)
}
