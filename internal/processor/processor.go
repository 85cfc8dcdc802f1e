// Package processor scores call events incrementally behind a durable
// watermark and recomputes historical windows on demand.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/store"
)

// Run kinds.
const (
	KindIncremental = "incremental"
	KindBackfill    = "backfill"
)

// Store is the persistence the processor needs. *store.DB implements it.
type Store interface {
	EventsAfter(ctx context.Context, cursor calls.Cursor, limit int) ([]calls.Event, error)
	EventsBetween(ctx context.Context, start, end time.Time, cursor calls.Cursor, limit int) ([]calls.Event, error)
	Upsert(ctx context.Context, values []catalogue.MetricValue) error
	AcquireLease(ctx context.Context, version, profile, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, version, profile, owner string) error
	GetWatermark(ctx context.Context, version, profile string) (store.Watermark, error)
	AdvanceWatermark(ctx context.Context, version, profile, owner string, cursor calls.Cursor) error
	RecordRun(ctx context.Context, r store.Run) error
}

// Options configures a Processor.
type Options struct {
	// Workers bounds how many events are evaluated concurrently.
	Workers int
	// LeaseTTL is how long a run may hold the watermark lease before another
	// run may take it over.
	LeaseTTL time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Processor runs the rule engine over the event feed.
type Processor struct {
	engine   *catalogue.Engine
	store    Store
	workers  int
	leaseTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a processor. Zero options fall back to 4 workers, a 5 minute
// lease and the wall clock.
func New(engine *catalogue.Engine, st Store, opts Options) *Processor {
	p := &Processor{
		engine:   engine,
		store:    st,
		workers:  opts.Workers,
		leaseTTL: opts.LeaseTTL,
		logger:   opts.Logger.With().Str("component", "processor").Logger(),
		now:      opts.Now,
	}
	if p.workers <= 0 {
		p.workers = 4
	}
	if p.leaseTTL <= 0 {
		p.leaseTTL = 5 * time.Minute
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Report describes one run.
type Report struct {
	RunID     string        `json:"run_id"`
	Kind      string        `json:"kind"`
	Version   string        `json:"version"`
	Profile   string        `json:"profile"`
	Processed int           `json:"processed"`
	Skipped   bool          `json:"skipped"`
	From      calls.Cursor  `json:"from"`
	To        calls.Cursor  `json:"to"`
	Start     time.Time     `json:"window_start,omitempty"`
	End       time.Time     `json:"window_end,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunIncremental scores up to batchSize events after the (version, profile)
// watermark and advances the watermark once every event has committed. A
// run that finds the lease held by a live owner returns a skipped report and
// no error. On failure the watermark is unchanged and the report carries the
// number of events persisted before the failure.
func (p *Processor) RunIncremental(ctx context.Context, version, profile string, batchSize int) (Report, error) {
	rep, err := p.begin(KindIncremental, version, profile)
	if err != nil {
		return rep, err
	}
	if batchSize <= 0 {
		return rep, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	started := p.now()

	held, err := p.acquire(ctx, &rep)
	if err != nil || held {
		return rep, err
	}
	defer p.release(rep)

	err = p.incremental(ctx, &rep, batchSize)
	p.finish(ctx, &rep, started, err)
	return rep, err
}

func (p *Processor) incremental(ctx context.Context, rep *Report, batchSize int) error {
	w, err := p.store.GetWatermark(ctx, rep.Version, rep.Profile)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}
	rep.From = w.Cursor
	rep.To = w.Cursor

	events, err := p.store.EventsAfter(ctx, w.Cursor, batchSize)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	rep.Start = events[0].OccurredAt
	rep.End = events[len(events)-1].OccurredAt

	if err := p.process(ctx, rep, events); err != nil {
		return err
	}

	last := calls.CursorOf(events[len(events)-1])
	if err := p.store.AdvanceWatermark(ctx, rep.Version, rep.Profile, rep.RunID, last); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	rep.To = last
	return nil
}

// RunBackfill recomputes every event with start <= occurred_at < end under
// version, in keyset pages of batchSize. It holds the (version, profile)
// lease for single-flight but never reads or moves any watermark.
func (p *Processor) RunBackfill(ctx context.Context, version, profile string, start, end time.Time, batchSize int) (Report, error) {
	rep, err := p.begin(KindBackfill, version, profile)
	if err != nil {
		return rep, err
	}
	if batchSize <= 0 {
		return rep, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if !start.Before(end) {
		return rep, fmt.Errorf("backfill window is empty: %s >= %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	rep.Start, rep.End = start, end
	started := p.now()

	held, err := p.acquire(ctx, &rep)
	if err != nil || held {
		return rep, err
	}
	defer p.release(rep)

	err = p.backfill(ctx, &rep, batchSize)
	p.finish(ctx, &rep, started, err)
	return rep, err
}

func (p *Processor) backfill(ctx context.Context, rep *Report, batchSize int) error {
	var cursor calls.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := p.store.EventsBetween(ctx, rep.Start, rep.End, cursor, batchSize)
		if err != nil {
			return fmt.Errorf("querying events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		if rep.From.IsZero() {
			rep.From = calls.CursorOf(events[0])
		}
		if err := p.process(ctx, rep, events); err != nil {
			return err
		}
		cursor = calls.CursorOf(events[len(events)-1])
		rep.To = cursor
		if len(events) < batchSize {
			return nil
		}
		// Long backfills renew the lease between pages.
		if err := p.store.AcquireLease(ctx, rep.Version, rep.Profile, rep.RunID, p.leaseTTL); err != nil {
			return fmt.Errorf("renewing lease: %w", err)
		}
	}
}

// Drain runs incremental batches until the feed is exhausted or a batch
// fails. The returned report sums every batch.
func (p *Processor) Drain(ctx context.Context, version, profile string, batchSize int) (Report, error) {
	var total Report
	for {
		rep, err := p.RunIncremental(ctx, version, profile, batchSize)
		if total.RunID == "" {
			total = rep
		} else {
			total.Processed += rep.Processed
			if rep.Processed > 0 {
				total.To = rep.To
				total.End = rep.End
			}
			total.Duration += rep.Duration
			total.Skipped = rep.Skipped
		}
		if err != nil || rep.Skipped || rep.Processed < batchSize {
			return total, err
		}
	}
}

// process evaluates events concurrently, then persists them one transaction
// per event in feed order. Cancellation is checked between events.
func (p *Processor) process(ctx context.Context, rep *Report, events []calls.Event) error {
	results := make([][]catalogue.MetricValue, len(events))
	source := rep.Kind + ":" + rep.RunID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ev := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := p.engine.EvaluateProfile(ev, rep.Version, rep.Profile)
			if err != nil {
				return err
			}
			for j := range values {
				values[j].Source = source
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("evaluating batch: %w", err)
	}

	for i, values := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.store.Upsert(ctx, values); err != nil {
			return fmt.Errorf("persisting event %d: %w", events[i].ID, err)
		}
		rep.Processed++
	}
	return nil
}

func (p *Processor) begin(kind, version, profile string) (Report, error) {
	rep := Report{Kind: kind, Version: version, Profile: profile}
	reg := p.engine.Registry()
	if _, err := reg.Version(version); err != nil {
		return rep, err
	}
	if _, err := reg.Selector(profile); err != nil {
		return rep, err
	}
	rep.RunID = uuid.NewString()
	return rep, nil
}

// acquire takes the lease. held reports that another run owns it.
func (p *Processor) acquire(ctx context.Context, rep *Report) (held bool, err error) {
	err = p.store.AcquireLease(ctx, rep.Version, rep.Profile, rep.RunID, p.leaseTTL)
	if errors.Is(err, store.ErrLeaseHeld) {
		rep.Skipped = true
		runsTotal.WithLabelValues(rep.Kind, "skipped").Inc()
		p.logger.Info().
			Str("run_id", rep.RunID).
			Str("kind", rep.Kind).
			Str("version", rep.Version).
			Str("profile", rep.Profile).
			Msg("calculation run skipped, lease held")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	return false, nil
}

func (p *Processor) release(rep Report) {
	// The run's context may already be cancelled; the lease must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.ReleaseLease(ctx, rep.Version, rep.Profile, rep.RunID); err != nil {
		p.logger.Warn().Err(err).Str("run_id", rep.RunID).Msg("releasing lease")
	}
}

// finish records run history, metrics and the completion event.
func (p *Processor) finish(ctx context.Context, rep *Report, started time.Time, runErr error) {
	finished := p.now()
	rep.Duration = finished.Sub(started)

	status := "ok"
	errText := ""
	if runErr != nil {
		status = "failed"
		errText = runErr.Error()
	}
	runsTotal.WithLabelValues(rep.Kind, status).Inc()
	eventsProcessed.WithLabelValues(rep.Kind, rep.Version).Add(float64(rep.Processed))
	runDuration.WithLabelValues(rep.Kind).Observe(rep.Duration.Seconds())

	histCtx := ctx
	if ctx.Err() != nil {
		histCtx = context.Background()
	}
	if err := p.store.RecordRun(histCtx, store.Run{
		ID:          rep.RunID,
		Kind:        rep.Kind,
		Version:     rep.Version,
		Profile:     rep.Profile,
		WindowStart: rep.Start,
		WindowEnd:   rep.End,
		StartedAt:   started,
		FinishedAt:  finished,
		Processed:   rep.Processed,
		Status:      status,
		Error:       errText,
	}); err != nil {
		p.logger.Warn().Err(err).Str("run_id", rep.RunID).Msg("recording run history")
	}

	var evt *zerolog.Event
	if runErr != nil {
		evt = p.logger.Error().Err(runErr)
	} else {
		evt = p.logger.Info()
	}
	evt.Str("run_id", rep.RunID).
		Str("kind", rep.Kind).
		Str("version", rep.Version).
		Str("profile", rep.Profile).
		Time("window_start", rep.Start).
		Time("window_end", rep.End).
		Int("count", rep.Processed).
		Dur("duration", rep.Duration).
		Msg("calculation run " + status)
}
