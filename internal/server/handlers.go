package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

const dateLayout = "2006-01-02"

type invalidateRequest struct {
	Subject    string `json:"subject"`
	PeriodType string `json:"period_type"`
}

type runRequest struct {
	Version   string `json:"version"`
	Profile   string `json:"profile"`
	BatchSize int    `json:"batch_size"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type callMetricsResponse struct {
	EventID int64                   `json:"event_id"`
	Values  []catalogue.MetricValue `json:"values"`
}

type statisticsResponse struct {
	store.Statistics
	Labels []store.LabelCount `json:"labels,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.Ping(); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "callwatch"})
}

// getDashboard serves GET /v1/dashboards/{subject}?period=&date=&refresh=
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refresh := q.Get("refresh") == "true"
	if !s.authorize(w, r, access.ViewDashboard) {
		return
	}
	if refresh && !s.authorize(w, r, access.Invalidate) {
		return
	}

	periodType := q.Get("period")
	if periodType == "" {
		periodType = dashboard.PeriodDay
	}
	ref := time.Now().In(s.opts.Location)
	if d := q.Get("date"); d != "" {
		t, err := time.ParseInLocation(dateLayout, d, s.opts.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = t
	}
	start, end, err := dashboard.PeriodBounds(periodType, ref)
	if err != nil {
		s.fail(w, err)
		return
	}

	subject := chi.URLParam(r, "subject")
	var d dashboard.Dashboard
	if refresh {
		d, err = s.opts.Dashboards.Refresh(r.Context(), subject, periodType, start, end)
	} else {
		d, err = s.opts.Dashboards.GetDashboard(r.Context(), subject, periodType, start, end)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// invalidateDashboards serves POST /v1/dashboards/invalidate
func (s *Server) invalidateDashboards(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, access.Invalidate) {
		return
	}
	var req invalidateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PeriodType != "" {
		if _, _, err := dashboard.PeriodBounds(req.PeriodType, time.Now()); err != nil {
			s.fail(w, err)
			return
		}
	}
	n, err := s.opts.Dashboards.Invalidate(r.Context(), req.Subject, req.PeriodType)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// getCallMetrics serves GET /v1/calls/{id}/metrics
func (s *Server) getCallMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, access.ViewMetrics) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "call id must be an integer")
		return
	}
	values, err := s.opts.Store.GetByEvent(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if values == nil {
		values = []catalogue.MetricValue{}
	}
	writeJSON(w, http.StatusOK, callMetricsResponse{EventID: id, Values: values})
}

// getStatistics serves GET /v1/statistics/{code}?from=&to=&version=
func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, access.ViewMetrics) {
		return
	}
	code := chi.URLParam(r, "code")
	def, ok := s.opts.Registry.Definition(code)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown metric %q", code))
		return
	}
	q := r.URL.Query()
	from, err := s.parseTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := s.parseTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	version := q.Get("version")
	if version == "" {
		version = s.opts.Version
	}

	stats, err := s.opts.Store.GetStatistics(r.Context(), code, version, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := statisticsResponse{Statistics: stats}
	if def.Shape == catalogue.ShapeLabel || def.Shape == catalogue.ShapeScoredLabel {
		resp.Labels, err = s.opts.Store.LabelDistribution(r.Context(), code, version, from, to)
		if err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// runIncremental serves POST /v1/runs/incremental
func (s *Server) runIncremental(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, access.RunIncremental) {
		return
	}
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	s.defaults(&req)
	rep, err := s.opts.Processor.RunIncremental(r.Context(), req.Version, req.Profile, req.BatchSize)
	if err != nil {
		s.failRun(w, err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// runBackfill serves POST /v1/runs/backfill
func (s *Server) runBackfill(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, access.RunBackfill) {
		return
	}
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	s.defaults(&req)
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	start, err := s.parseTime(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	end, err := s.parseTime(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	rep, err := s.opts.Processor.RunBackfill(r.Context(), req.Version, req.Profile, start, end, req.BatchSize)
	if err != nil {
		s.failRun(w, err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) defaults(req *runRequest) {
	if req.Version == "" {
		req.Version = s.opts.Version
	}
	if req.Profile == "" {
		req.Profile = s.opts.Profile
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.opts.BatchSize
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, action access.Action) bool {
	actor := r.Header.Get(actorHeader)
	if err := s.opts.Authorizer.Authorize(actor, action); err != nil {
		s.logger.Warn().Str("actor", actor).Str("action", string(action)).Msg("request denied")
		s.fail(w, err)
		return false
	}
	return true
}

// parseTime accepts RFC 3339 timestamps and dates in the configured
// location. Empty input is the zero time, an open bound.
func (s *Server) parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, s.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// runFailure is the body of a failed run; Report.Processed counts the events
// committed before the abort.
type runFailure struct {
	Error  string           `json:"error"`
	Report processor.Report `json:"report"`
}

func (s *Server) failRun(w http.ResponseWriter, err error, rep processor.Report) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("run_id", rep.RunID).
			Int("processed", rep.Processed).
			Msg("calculation run failed")
	}
	writeJSON(w, status, runFailure{Error: err.Error(), Report: rep})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalogue.ErrUnknownVersion),
		errors.Is(err, catalogue.ErrUnknownSelector),
		errors.Is(err, dashboard.ErrUnknownPeriod):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decode reads an optional JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
