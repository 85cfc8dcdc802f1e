// Package dashboard computes per-operator, per-period rollups of call
// events and their metric values and caches them for a bounded freshness window.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/store"
)

// Defaults for Options.
const (
	DefaultTTL       = 5 * time.Minute
	DefaultRetention = 7 * 24 * time.Hour
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "callwatch_dashboard_cache_total",
	Help: "Dashboard cache lookups by result",
}, []string{"result"})

// Store is the persistence the dashboard service needs. *store.DB
// implements it.
type Store interface {
	GetAggregate(ctx context.Context, subject, periodType string, periodStart time.Time) (*store.AggregateRow, error)
	PutAggregate(ctx context.Context, a store.AggregateRow) error
	DeleteAggregates(ctx context.Context, f store.AggregateFilter) (int64, error)
	CleanupAggregates(ctx context.Context, cutoff time.Time) (int64, error)
	EventsForSubject(ctx context.Context, subject string, start, end time.Time) ([]calls.Event, error)
	ValuesForEvents(ctx context.Context, subject, version string, start, end time.Time, codes ...string) (map[int64]map[string]catalogue.MetricValue, error)
}

// Options configures a Service.
type Options struct {
	// Version is the catalogue version whose metric values feed the rollup.
	Version   string
	TTL       time.Duration
	Retention time.Duration
	// Location anchors day, week and month boundaries.
	Location *time.Location
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Dashboard is one rollup with its cache metadata.
type Dashboard struct {
	Subject     string    `json:"subject"`
	PeriodType  string    `json:"period_type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Version     string    `json:"version"`
	CachedAt    time.Time `json:"cached_at"`
	FromCache   bool      `json:"from_cache"`
	Fields
}

// Service serves dashboards from the aggregate cache, recomputing on a miss.
type Service struct {
	store     Store
	version   string
	ttl       time.Duration
	retention time.Duration
	loc       *time.Location
	logger    zerolog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewService returns a dashboard service over st.
func NewService(st Store, opts Options) *Service {
	s := &Service{
		store:     st,
		version:   opts.Version,
		ttl:       opts.TTL,
		retention: opts.Retention,
		loc:       opts.Location,
		logger:    opts.Logger.With().Str("component", "dashboard").Logger(),
		now:       opts.Now,
	}
	if s.version == "" {
		s.version = catalogue.DefaultVersionTag
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Version returns the catalogue version the service aggregates.
func (s *Service) Version() string {
	return s.version
}

// ForPeriod returns the dashboard of the period of periodType containing ref.
func (s *Service) ForPeriod(ctx context.Context, subject, periodType string, ref time.Time) (Dashboard, error) {
	start, end, err := PeriodBounds(periodType, ref.In(s.loc))
	if err != nil {
		return Dashboard{}, err
	}
	return s.GetDashboard(ctx, subject, periodType, start, end)
}

// GetDashboard returns the rollup of subject over [start, end). A cached row
// younger than the TTL is served as is. Cache failures are logged and
// answered from the miss path; they never fail the request.
func (s *Service) GetDashboard(ctx context.Context, subject, periodType string, start, end time.Time) (Dashboard, error) {
	if subject == "" {
		subject = store.AllSubjects
	}
	start, end = storedTime(start), storedTime(end)
	if !start.Before(end) {
		return Dashboard{}, fmt.Errorf("empty dashboard window %s - %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	if d, ok := s.cached(ctx, subject, periodType, start, end); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return d, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	key := fmt.Sprintf("%s|%s|%d|%d", subject, periodType, start.UnixMilli(), end.UnixMilli())
	// Waiters share the result, so one caller's cancellation must not fail the others.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(shared, subject, periodType, start, end)
	})
	if err != nil {
		return Dashboard{}, err
	}
	return v.(Dashboard), nil
}

// Refresh recomputes the rollup of subject over [start, end) regardless of
// cache age and stores the result.
func (s *Service) Refresh(ctx context.Context, subject, periodType string, start, end time.Time) (Dashboard, error) {
	if subject == "" {
		subject = store.AllSubjects
	}
	start, end = storedTime(start), storedTime(end)
	if !start.Before(end) {
		return Dashboard{}, fmt.Errorf("empty dashboard window %s - %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	cacheLookups.WithLabelValues("refresh").Inc()
	return s.compute(ctx, subject, periodType, start, end)
}

func (s *Service) cached(ctx context.Context, subject, periodType string, start, end time.Time) (Dashboard, bool) {
	row, err := s.store.GetAggregate(ctx, subject, periodType, start)
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("subject", subject).Str("period", periodType).Msg("dashboard cache read failed")
		return Dashboard{}, false
	}
	if row == nil || row.Version != s.version || !row.PeriodEnd.Equal(end) {
		return Dashboard{}, false
	}
	if s.now().Sub(row.CachedAt) >= s.ttl {
		return Dashboard{}, false
	}
	var f Fields
	if err := json.Unmarshal(row.Fields, &f); err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("subject", subject).Str("period", periodType).Msg("dashboard cache row unreadable")
		return Dashboard{}, false
	}
	return Dashboard{
		Subject:     row.Subject,
		PeriodType:  row.PeriodType,
		PeriodStart: row.PeriodStart,
		PeriodEnd:   row.PeriodEnd,
		Version:     row.Version,
		CachedAt:    row.CachedAt,
		FromCache:   true,
		Fields:      f,
	}, true
}

func (s *Service) compute(ctx context.Context, subject, periodType string, start, end time.Time) (Dashboard, error) {
	events, err := s.store.EventsForSubject(ctx, subject, start, end)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading events: %w", err)
	}
	values, err := s.store.ValuesForEvents(ctx, subject, s.version, start, end, rollupCodes...)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading metric values: %w", err)
	}

	d := Dashboard{
		Subject:     subject,
		PeriodType:  periodType,
		PeriodStart: start,
		PeriodEnd:   end,
		Version:     s.version,
		CachedAt:    storedTime(s.now()),
		Fields:      Rollup(events, values),
	}

	payload, err := json.Marshal(d.Fields)
	if err == nil {
		err = s.store.PutAggregate(ctx, store.AggregateRow{
			Subject:     d.Subject,
			PeriodType:  d.PeriodType,
			PeriodStart: d.PeriodStart,
			PeriodEnd:   d.PeriodEnd,
			Version:     d.Version,
			Fields:      payload,
			CachedAt:    d.CachedAt,
		})
	}
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("subject", subject).Str("period", periodType).Msg("dashboard cache write failed")
	}
	return d, nil
}

// storedTime reduces t to the millisecond UTC precision the store keeps, so a
// computed dashboard and its later cache hit carry identical times.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Invalidate drops cached rows for subject and periodType. Empty arguments
// match every subject or period type.
func (s *Service) Invalidate(ctx context.Context, subject, periodType string) (int64, error) {
	n, err := s.store.DeleteAggregates(ctx, store.AggregateFilter{Subject: subject, PeriodType: periodType})
	if err != nil {
		return 0, fmt.Errorf("invalidating dashboards: %w", err)
	}
	s.logger.Info().Str("subject", subject).Str("period", periodType).Int64("deleted", n).Msg("dashboards invalidated")
	return n, nil
}

// Cleanup drops cached rows older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.CleanupAggregates(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("cleaning dashboard cache: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("stale dashboards removed")
	}
	return n, nil
}
