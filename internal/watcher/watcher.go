// Package watcher drives the calculation pipeline on a schedule: it drains
// new call events into metric values, expires stale dashboards and raises
// alerts when runs fail or hot leads pile up.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

// Job is one (version, profile) pair kept current by the watcher.
type Job struct {
	Version string
	Profile string
}

func (j Job) String() string {
	return j.Version + "/" + j.Profile
}

// Runner drains the event feed for one job. *processor.Processor
// implements it.
type Runner interface {
	Drain(ctx context.Context, version, profile string, batchSize int) (processor.Report, error)
}

// Cache expires stale dashboards. *dashboard.Service implements it.
type Cache interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Leads finds callback candidates. *store.DB implements it.
type Leads interface {
	HotMissedLeads(ctx context.Context, version string, threshold float64, from, to time.Time, limit int) ([]store.Lead, error)
}

// WatchState captures the outcome of one check cycle.
type WatchState struct {
	Timestamp time.Time
	// Processed counts events scored this cycle, per job.
	Processed map[string]int
	// Skipped marks jobs whose lease was held by another run.
	Skipped map[string]bool
	// Failures holds the error of every job that failed this cycle.
	Failures map[string]string
	// HotLeads is the number of unbooked target calls above the lead
	// threshold within the lead window.
	HotLeads int
	// LeadsErr is set when the lead query failed.
	LeadsErr string
}

// Alert represents a notable event detected by the watcher.
type Alert struct {
	Level   string // "info", "warning", "critical"
	Title   string
	Message string
	Time    time.Time
	// Job is the "version/profile" key the alert concerns, empty for
	// store-wide alerts.
	Job string
}

// Options configures a Watcher.
type Options struct {
	Jobs            []Job
	BatchSize       int
	Interval        time.Duration
	CleanupInterval time.Duration
	// LeadThreshold is the minimum conversion forecast of a hot lead;
	// LeadWindow is how far back leads are counted. A zero window disables
	// lead alerts.
	LeadThreshold float64
	LeadWindow    time.Duration
	AlertFn       func(Alert)
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Watcher runs the pipeline at a regular interval and emits alerts when
// notable changes are detected.
type Watcher struct {
	runner        Runner
	cache         Cache
	leads         Leads
	opts          Options
	logger        zerolog.Logger
	previous      *WatchState
	lastAlertKeys map[string]bool // dedup: suppress repeated identical alerts
}

// New creates a Watcher. cache and leads may be nil.
func New(runner Runner, cache Cache, leads Leads, opts Options) *Watcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{
		runner:        runner,
		cache:         cache,
		leads:         leads,
		opts:          opts,
		logger:        opts.Logger.With().Str("component", "watcher").Logger(),
		lastAlertKeys: make(map[string]bool),
	}
}

// Run checks once immediately and then at every interval, cleaning the
// dashboard cache at the cleanup interval. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().
		Int("jobs", len(w.opts.Jobs)).
		Dur("interval", w.opts.Interval).
		Msg("watcher started")

	w.emit(w.Check(ctx))
	w.cleanup(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(w.opts.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.emit(w.Check(ctx))
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

// Check performs a single cycle: drains every job, takes a snapshot, compares
// it against the previous one and returns any alerts. Identical alerts are
// suppressed until the underlying state changes.
func (w *Watcher) Check(ctx context.Context) []Alert {
	curr := w.Snapshot(ctx)

	var raw []Alert
	if w.previous != nil {
		raw = Compare(w.previous, curr)
	} else {
		raw = Compare(&WatchState{}, curr)
	}

	currentKeys := make(map[string]bool, len(raw))
	var alerts []Alert
	for _, a := range raw {
		key := a.Level + ":" + a.Title + ":" + a.Message
		currentKeys[key] = true
		if !w.lastAlertKeys[key] {
			alerts = append(alerts, a)
		}
	}
	w.lastAlertKeys = currentKeys

	w.previous = curr
	return alerts
}

// Snapshot drains every job and counts hot leads.
func (w *Watcher) Snapshot(ctx context.Context) *WatchState {
	state := &WatchState{
		Timestamp: w.opts.Now(),
		Processed: make(map[string]int),
		Skipped:   make(map[string]bool),
		Failures:  make(map[string]string),
	}

	for _, job := range w.opts.Jobs {
		if ctx.Err() != nil {
			break
		}
		rep, err := w.runner.Drain(ctx, job.Version, job.Profile, w.opts.BatchSize)
		key := job.String()
		state.Processed[key] = rep.Processed
		if rep.Skipped {
			state.Skipped[key] = true
		}
		if err != nil {
			state.Failures[key] = err.Error()
			w.logger.Error().Err(err).Str("job", key).Msg("scheduled calculation failed")
		}
	}

	if w.leads != nil && w.opts.LeadWindow > 0 && len(w.opts.Jobs) > 0 {
		leads, err := w.leads.HotMissedLeads(ctx, w.opts.Jobs[0].Version, w.opts.LeadThreshold,
			state.Timestamp.Add(-w.opts.LeadWindow), state.Timestamp, 1000)
		if err != nil {
			state.LeadsErr = err.Error()
			w.logger.Warn().Err(err).Msg("hot lead query failed")
		} else {
			state.HotLeads = len(leads)
		}
	}
	return state
}

func (w *Watcher) cleanup(ctx context.Context) {
	if w.cache == nil {
		return
	}
	if _, err := w.cache.Cleanup(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("dashboard cleanup failed")
	}
}

func (w *Watcher) emit(alerts []Alert) {
	for _, a := range alerts {
		if w.opts.AlertFn != nil {
			w.opts.AlertFn(a)
		}
	}
}

// describe formats a count of calls.
func describe(n int) string {
	if n == 1 {
		return "1 call"
	}
	return fmt.Sprintf("%d calls", n)
}
