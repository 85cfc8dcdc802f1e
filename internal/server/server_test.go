package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

var day = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, origins ...string) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg, err := catalogue.Builtin(time.UTC)
	require.NoError(t, err)
	roles, err := access.NewRoleTable(map[string]string{"ops": access.RoleOperator, "boss": access.RoleAdmin}, access.RoleViewer)
	require.NoError(t, err)

	events := []calls.Event{
		{ID: 1, Subject: "op-1", OccurredAt: day.Add(9 * time.Hour), Outcome: calls.OutcomeRecord, IsTarget: true, DurationSec: 45},
		{ID: 2, Subject: "op-1", OccurredAt: day.Add(10 * time.Hour), Outcome: calls.OutcomeLeadNoRecord, IsTarget: true, DurationSec: 120},
		{ID: 3, Subject: "op-2", OccurredAt: day.Add(11 * time.Hour), DurationSec: 0},
	}
	_, err = db.InsertEvents(context.Background(), events)
	require.NoError(t, err)

	srv := New(Options{
		Registry:       reg,
		Store:          db,
		Dashboards:     dashboard.NewService(db, dashboard.Options{Logger: zerolog.Nop()}),
		Processor:      processor.New(catalogue.NewEngine(reg), db, processor.Options{Logger: zerolog.Nop()}),
		Authorizer:     roles,
		BatchSize:      100,
		AllowedOrigins: origins,
		Logger:         zerolog.Nop(),
	})
	return srv, db
}

func do(t *testing.T, srv *Server, method, target, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}

func TestRunIncrementalThenReadCallMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/v1/calls/1/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[callMetricsResponse](t, rec).Values)

	rec = do(t, srv, http.MethodPost, "/v1/runs/incremental", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decodeBody[processor.Report](t, rec)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, catalogue.DefaultVersionTag, rep.Version)
	assert.Equal(t, catalogue.SelectorShift, rep.Profile)

	rec = do(t, srv, http.MethodGet, "/v1/calls/1/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[callMetricsResponse](t, rec)
	assert.Equal(t, int64(1), resp.EventID)
	assert.Len(t, resp.Values, len(catalogue.Definitions()))

	rec = do(t, srv, http.MethodGet, "/v1/calls/abc/metrics", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunRejectsUnknownVersion(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", `{"version":"rules_v9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", `{"version":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackfillRequiresAdmin(t *testing.T) {
	srv, db := newTestServer(t)
	body := `{"from":"2025-03-04","to":"2025-03-05"}`

	rec := do(t, srv, http.MethodPost, "/v1/runs/backfill", "ops", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/runs/backfill", "boss", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[processor.Report](t, rec).Processed)

	w, err := db.GetWatermark(context.Background(), catalogue.DefaultVersionTag, catalogue.SelectorShift)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero())

	rec = do(t, srv, http.MethodPost, "/v1/runs/backfill", "boss", `{"from":"2025-03-05","to":"2025-03-04"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodPost, "/v1/runs/backfill", "boss", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
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

func withFailingProcessor(t *testing.T, srv *Server, db *store.DB, okCalls int) {
	t.Helper()
	reg, err := catalogue.Builtin(time.UTC)
	require.NoError(t, err)
	srv.opts.Processor = processor.New(catalogue.NewEngine(reg), &failingStore{DB: db, okCalls: okCalls}, processor.Options{Logger: zerolog.Nop()})
}

func TestFailedRunReportsProcessedCount(t *testing.T) {
	srv, db := newTestServer(t)
	withFailingProcessor(t, srv, db, 2)

	rec := do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	body := decodeBody[runFailure](t, rec)
	assert.Contains(t, body.Error, "disk I/O error")
	assert.Equal(t, 2, body.Report.Processed)
	assert.Equal(t, processor.KindIncremental, body.Report.Kind)
	assert.NotEmpty(t, body.Report.RunID)

	w, err := db.GetWatermark(context.Background(), catalogue.DefaultVersionTag, catalogue.SelectorShift)
	require.NoError(t, err)
	assert.True(t, w.Cursor.IsZero())
}

func TestFailedBackfillReportsProcessedCount(t *testing.T) {
	srv, db := newTestServer(t)
	withFailingProcessor(t, srv, db, 1)

	rec := do(t, srv, http.MethodPost, "/v1/runs/backfill", "boss", `{"from":"2025-03-04","to":"2025-03-05"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	body := decodeBody[runFailure](t, rec)
	assert.Contains(t, body.Error, "disk I/O error")
	assert.Equal(t, 1, body.Report.Processed)

	rec = do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", `{"version":"rules_v9"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, decodeBody[runFailure](t, rec).Report.Processed)
}

func TestDashboardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", "").Code)

	rec := do(t, srv, http.MethodGet, "/v1/dashboards/op-1?period=day&date=2025-03-04", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[dashboard.Dashboard](t, rec)
	assert.False(t, first.FromCache)
	assert.Equal(t, 2, first.TotalCalls)
	assert.Equal(t, 1, first.RecordsCount)
	assert.True(t, first.PeriodStart.Equal(day))

	rec = do(t, srv, http.MethodGet, "/v1/dashboards/op-1?period=day&date=2025-03-04", "", "")
	assert.True(t, decodeBody[dashboard.Dashboard](t, rec).FromCache)

	rec = do(t, srv, http.MethodGet, "/v1/dashboards/*?date=2025-03-04", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[dashboard.Dashboard](t, rec).TotalCalls)

	// Refreshing is an invalidation and needs operator rights.
	rec = do(t, srv, http.MethodGet, "/v1/dashboards/op-1?date=2025-03-04&refresh=true", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, srv, http.MethodGet, "/v1/dashboards/op-1?date=2025-03-04&refresh=true", "ops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[dashboard.Dashboard](t, rec).FromCache)

	rec = do(t, srv, http.MethodGet, "/v1/dashboards/op-1?period=quarter", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodGet, "/v1/dashboards/op-1?date=04.03.2025", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, target := range []string{
		"/v1/dashboards/op-1?date=2025-03-04",
		"/v1/dashboards/op-1?period=week&date=2025-03-04",
		"/v1/dashboards/op-2?date=2025-03-04",
	} {
		require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, target, "", "").Code)
	}

	rec := do(t, srv, http.MethodPost, "/v1/dashboards/invalidate", "", `{"subject":"op-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/dashboards/invalidate", "ops", `{"subject":"op-1","period_type":"day"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeBody[map[string]int64](t, rec)["deleted"])

	rec = do(t, srv, http.MethodPost, "/v1/dashboards/invalidate", "ops", `{"period_type":"year"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/dashboards/invalidate", "OPS", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[map[string]int64](t, rec)["deleted"])
}

func TestStatisticsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", "").Code)

	rec := do(t, srv, http.MethodGet, "/v1/statistics/response_speed_score?from=2025-03-04&to=2025-03-05", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[statisticsResponse](t, rec)
	assert.Equal(t, 3, stats.Count)
	assert.Empty(t, stats.Labels)

	rec = do(t, srv, http.MethodGet, "/v1/statistics/churn_risk_level", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats = decodeBody[statisticsResponse](t, rec)
	total := 0
	for _, l := range stats.Labels {
		total += l.Count
	}
	assert.Equal(t, 3, total)

	rec = do(t, srv, http.MethodGet, "/v1/statistics/no_such_metric", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/v1/statistics/response_speed_score?from=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/runs/incremental", "ops", "").Code)

	rec := do(t, srv, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "callwatch_processor_runs_total")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, "https://wallboard.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/v1/dashboards/op-1", nil)
	req.Header.Set("Origin", "https://wallboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://wallboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
