package processor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/store"
)

const (
	v1      = catalogue.DefaultVersionTag
	v2      = "rules_v2"
	profile = catalogue.SelectorShift
)

var base = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *store.DB
	engine *catalogue.Engine
	logs   *bytes.Buffer
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg, err := catalogue.Builtin(time.UTC, catalogue.VersionSpec{
		Tag:       v2,
		Constants: map[string]float64{"speed_answered": 90},
	})
	require.NoError(t, err)
	return &fixture{db: db, engine: catalogue.NewEngine(reg), logs: &bytes.Buffer{}, clock: base}
}

func (f *fixture) processor(st Store) *Processor {
	return New(f.engine, st, Options{Workers: 3, LeaseTTL: time.Minute, Logger: zerolog.New(f.logs), Now: f.tick})
}

// tick is a clock that moves one second per reading so run history orders
// deterministically.
func (f *fixture) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fixture) seed(t *testing.T, n int) []calls.Event {
	t.Helper()
	events := make([]calls.Event, n)
	for i := range events {
		events[i] = calls.Event{
			ID:          int64(i + 1),
			OccurredAt:  base.Add(time.Duration(i) * time.Minute),
			Subject:     "op-1",
			Outcome:     calls.OutcomeRecord,
			IsTarget:    i%2 == 0,
			DurationSec: float64(20 + i*10),
		}
	}
	_, err := f.db.InsertEvents(context.Background(), events)
	require.NoError(t, err)
	return events
}

// failingStore fails Upsert after a number of successful calls.
type failingStore struct {
	*store.DB
	okCalls int
	calls   int
}

func (s *failingStore) Upsert(ctx context.Context, values []catalogue.MetricValue) error {
	s.calls++
	if s.calls > s.okCalls {
		return errors.New("disk I/O error")
	}
	return s.DB.Upsert(ctx, values)
}

func TestRunIncrementalAdvancesWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events := f.seed(t, 5)
	p := f.processor(f.db)

	rep, err := p.RunIncremental(ctx, v1, profile, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)
	assert.False(t, rep.Skipped)
	assert.Equal(t, int64(3), rep.To.EventID)
	assert.NotEmpty(t, rep.RunID)

	w, err := f.db.GetWatermark(ctx, v1, profile)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.Cursor.EventID)
	assert.True(t, w.Cursor.OccurredAt.Equal(events[2].OccurredAt))
	assert.Empty(t, w.LeaseOwner, "lease released")

	rep, err = p.RunIncremental(ctx, v1, profile, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)

	rep, err = p.RunIncremental(ctx, v1, profile, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Processed)

	n, err := f.db.CountValues(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, 5*len(catalogue.Definitions()), n)

	values, err := f.db.GetByEvent(ctx, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(values[0].Source, "incremental:"))

	assert.Contains(t, f.logs.String(), `"message":"calculation run ok"`)
	assert.Contains(t, f.logs.String(), `"count":3`)
}

func TestRunIncrementalPicksUpLateEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 2)
	p := f.processor(f.db)

	_, err := p.RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)

	_, err = f.db.InsertEvents(ctx, []calls.Event{{ID: 10, OccurredAt: base.Add(time.Hour), Subject: "op-2"}})
	require.NoError(t, err)

	rep, err := p.RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, int64(10), rep.To.EventID)
}

func TestRunIncrementalCrashLeavesWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 5)

	broken := &failingStore{DB: f.db, okCalls: 2}
	rep, err := f.processor(broken).RunIncremental(ctx, v1, profile, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, 2, rep.Processed)

	w, err := f.db.GetWatermark(ctx, v1, profile)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero(), "watermark must not move on failure")
	assert.Empty(t, w.LeaseOwner)

	rep, err = f.processor(f.db).RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Processed)

	n, err := f.db.CountValues(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, 5*len(catalogue.Definitions()), n, "reprocessing must not duplicate")

	runs, err := f.db.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Equal(t, "failed", runs[1].Status)
}

func TestRunIncrementalCatalogueBug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 3)

	defs := append(catalogue.Definitions(), catalogue.Definition{
		Code: "broken", Group: catalogue.GroupQuality, Shape: catalogue.ShapeNumeric,
		Method: catalogue.MethodRule, Range: [2]float64{0, 100},
		Rule: func(ev calls.Event, _ catalogue.RuleContext) catalogue.Value {
			if ev.ID == 2 {
				panic("unhandled category")
			}
			v := 1.0
			return catalogue.Value{Numeric: &v}
		},
	})
	reg, err := catalogue.NewRegistry(defs, []catalogue.Version{catalogue.DefaultVersion()},
		[]catalogue.Selector{catalogue.ShiftSelector(time.UTC)})
	require.NoError(t, err)

	p := New(catalogue.NewEngine(reg), f.db, Options{Logger: zerolog.Nop()})
	rep, err := p.RunIncremental(ctx, v1, profile, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalogue.ErrCatalogueBug))
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 0, rep.Processed)

	w, err := f.db.GetWatermark(ctx, v1, profile)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero())
}

func TestRunIncrementalSkipsWhenLeaseHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 2)

	require.NoError(t, f.db.AcquireLease(ctx, v1, profile, "other-run", time.Minute))

	rep, err := f.processor(f.db).RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, 0, rep.Processed)

	w, err := f.db.GetWatermark(ctx, v1, profile)
	require.NoError(t, err)
	assert.Equal(t, "other-run", w.LeaseOwner)
	assert.True(t, w.Cursor.IsZero())

	// A different pair is not blocked.
	rep, err = f.processor(f.db).RunIncremental(ctx, v2, profile, 10)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 2, rep.Processed)
}

func TestRunIncrementalCancelled(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.processor(f.db).RunIncremental(ctx, v1, profile, 10)
	require.Error(t, err)

	w, err := f.db.GetWatermark(context.Background(), v1, profile)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero())
}

func TestRunIncrementalRejectsUnknownVersion(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor(f.db).RunIncremental(context.Background(), "nope", profile, 10)
	assert.True(t, errors.Is(err, catalogue.ErrUnknownVersion))

	_, err = f.processor(f.db).RunIncremental(context.Background(), v1, profile, 0)
	assert.Error(t, err)
}

func TestVersionsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 4)
	p := f.processor(f.db)

	_, err := p.RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)
	before, err := f.db.GetByEvent(ctx, 1)
	require.NoError(t, err)

	rep, err := p.RunBackfill(ctx, v2, profile, base, base.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Processed)

	after, err := f.db.GetByEvent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, after, 2*len(before))

	var oldSpeed, newSpeed float64
	for _, v := range after {
		if v.Code != "response_speed_score" {
			continue
		}
		switch v.Version {
		case v1:
			oldSpeed = *v.Numeric
		case v2:
			newSpeed = *v.Numeric
			assert.True(t, strings.HasPrefix(v.Source, "backfill:"))
		}
	}
	assert.Equal(t, 85.0, oldSpeed)
	assert.Equal(t, 90.0, newSpeed)

	for _, v := range before {
		var match bool
		for _, a := range after {
			if a.Code == v.Code && a.Version == v.Version {
				assert.Equal(t, v.Numeric, a.Numeric)
				assert.Equal(t, v.Label, a.Label)
				assert.Equal(t, v.Source, a.Source)
				match = true
			}
		}
		assert.True(t, match, v.Code)
	}

	// Backfill never touches watermarks.
	w, err := f.db.GetWatermark(ctx, v2, profile)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero())
	w, err = f.db.GetWatermark(ctx, v1, profile)
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.Cursor.EventID)
}

func TestRunBackfillWindowAndIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 6)
	p := f.processor(f.db)

	// Events 2, 3 and 4 fall in [base+1m, base+4m).
	rep, err := p.RunBackfill(ctx, v1, profile, base.Add(time.Minute), base.Add(4*time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, int64(2), rep.From.EventID)
	assert.Equal(t, int64(4), rep.To.EventID)

	first, err := f.db.GetByEvent(ctx, 3)
	require.NoError(t, err)

	rep, err = p.RunBackfill(ctx, v1, profile, base.Add(time.Minute), base.Add(4*time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)

	second, err := f.db.GetByEvent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Numeric, second[i].Numeric)
		assert.Equal(t, first[i].Label, second[i].Label)
		assert.JSONEq(t, jsonOr(first[i].Payload), jsonOr(second[i].Payload))
	}

	n, err := f.db.CountValues(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, 3*len(catalogue.Definitions()), n)

	_, err = p.RunBackfill(ctx, v1, profile, base, base, 2)
	assert.Error(t, err)
}

func TestDrainProcessesAllBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 7)

	rep, err := f.processor(f.db).Drain(ctx, v1, profile, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Processed)
	assert.Equal(t, int64(7), rep.To.EventID)
}

func TestNightEventsCarryContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.db.InsertEvents(ctx, []calls.Event{
		{ID: 1, OccurredAt: time.Date(2025, 3, 4, 23, 15, 0, 0, time.UTC), Subject: "op-1"},
	})
	require.NoError(t, err)

	_, err = f.processor(f.db).RunIncremental(ctx, v1, profile, 10)
	require.NoError(t, err)

	values, err := f.db.GetByEvent(ctx, 1)
	require.NoError(t, err)
	for _, v := range values {
		assert.Equal(t, catalogue.ContextNightShift, v.Context)
	}
}

func jsonOr(b []byte) string {
	if len(b) == 0 {
		return "null"
	}
	return string(b)
}
