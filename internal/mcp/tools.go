package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/store"
)

const dateLayout = "2006-01-02"

// CallMetricsResult holds every stored metric value of one call.
type CallMetricsResult struct {
	EventID int64                   `json:"event_id"`
	Values  []catalogue.MetricValue `json:"values"`
}

// InvalidateResult reports how many cached dashboards were dropped.
type InvalidateResult struct {
	Deleted int64 `json:"deleted"`
}

// StatisticsResult summarizes one metric, with the label breakdown for
// label-shaped metrics.
type StatisticsResult struct {
	store.Statistics
	Labels []store.LabelCount `json:"labels,omitempty"`
}

// HotLeadsResult lists unbooked target calls worth a callback.
type HotLeadsResult struct {
	Threshold float64      `json:"threshold"`
	Leads     []store.Lead `json:"leads"`
}

// MetricInfo describes one catalogue entry.
type MetricInfo struct {
	Code        string `json:"code"`
	Group       string `json:"group"`
	Shape       string `json:"shape"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var (
	noArgsSchema     = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
	dashboardSchema  = json.RawMessage(`{"type":"object","properties":{"subject":{"type":"string","description":"Operator id, or * for the whole call center (default *)"},"period":{"type":"string","enum":["day","week","month"],"description":"Period type (default day)"},"date":{"type":"string","description":"Any date inside the period, YYYY-MM-DD (default today)"}},"additionalProperties":false}`)
	callSchema       = json.RawMessage(`{"type":"object","properties":{"event_id":{"type":"integer","description":"Call event id"}},"required":["event_id"],"additionalProperties":false}`)
	invalidateSchema = json.RawMessage(`{"type":"object","properties":{"subject":{"type":"string","description":"Operator id; empty matches all"},"period":{"type":"string","description":"Period type; empty matches all"}},"additionalProperties":false}`)
	statisticsSchema = json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Metric code"},"from":{"type":"string","description":"Start date YYYY-MM-DD, inclusive"},"to":{"type":"string","description":"End date YYYY-MM-DD, exclusive"},"version":{"type":"string","description":"Catalogue version tag"}},"required":["code"],"additionalProperties":false}`)
	leadsSchema      = json.RawMessage(`{"type":"object","properties":{"days":{"type":"integer","description":"Look-back window in days (default 7)"},"limit":{"type":"integer","description":"Maximum leads to return"}},"additionalProperties":false}`)
)

// addTools registers every MCP tool handler on s.
func addTools(s *Server) {
	s.registerTool(toolDef{
		Name:        "get_dashboard",
		Description: "Call center or operator dashboard for a day, week or month: volumes, conversion, talk time, risk bands and uplift.",
		InputSchema: dashboardSchema,
		Handler:     s.handleGetDashboard,
	})
	s.registerTool(toolDef{
		Name:        "get_call_metrics",
		Description: "Every computed metric value of one call, across catalogue versions.",
		InputSchema: callSchema,
		Handler:     s.handleGetCallMetrics,
	})
	s.registerTool(toolDef{
		Name:        "invalidate_dashboard",
		Description: "Drop cached dashboards so the next read recomputes them.",
		InputSchema: invalidateSchema,
		Handler:     s.handleInvalidateDashboard,
	})
	s.registerTool(toolDef{
		Name:        "get_metric_statistics",
		Description: "Count, average, min, max and standard deviation of one metric over a date range.",
		InputSchema: statisticsSchema,
		Handler:     s.handleGetMetricStatistics,
	})
	s.registerTool(toolDef{
		Name:        "get_hot_leads",
		Description: "Recent target calls that ended without a booking but have a high forecast conversion probability.",
		InputSchema: leadsSchema,
		Handler:     s.handleGetHotLeads,
	})
	s.registerTool(toolDef{
		Name:        "list_metrics",
		Description: "The metric catalogue: code, group, shape and method of every metric.",
		InputSchema: noArgsSchema,
		Handler:     s.handleListMetrics,
	})
}

// parseArgs decodes optional tool arguments into v.
func parseArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) authorize(action access.Action) error {
	return s.opts.Authorizer.Authorize(s.opts.Actor, action)
}

func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, s.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

// handleGetDashboard returns the dashboard of the period containing date.
func (s *Server) handleGetDashboard(ctx context.Context, args json.RawMessage) (any, error) {
	if err := s.authorize(access.ViewDashboard); err != nil {
		return nil, err
	}
	var params struct {
		Subject string `json:"subject"`
		Period  string `json:"period"`
		Date    string `json:"date"`
	}
	if err := parseArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Period == "" {
		params.Period = dashboard.PeriodDay
	}
	ref, err := s.parseDate(params.Date)
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		ref = s.opts.Now().In(s.opts.Location)
	}
	return s.opts.Dashboards.ForPeriod(ctx, params.Subject, params.Period, ref)
}

// handleGetCallMetrics returns the stored metric values of one call.
func (s *Server) handleGetCallMetrics(ctx context.Context, args json.RawMessage) (any, error) {
	if err := s.authorize(access.ViewMetrics); err != nil {
		return nil, err
	}
	var params struct {
		EventID *int64 `json:"event_id"`
	}
	if err := parseArgs(args, &params); err != nil {
		return nil, err
	}
	if params.EventID == nil {
		return nil, errors.New("event_id is required")
	}
	values, err := s.opts.Store.GetByEvent(ctx, *params.EventID)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []catalogue.MetricValue{}
	}
	return CallMetricsResult{EventID: *params.EventID, Values: values}, nil
}

// handleInvalidateDashboard drops cached dashboards matching the filters.
func (s *Server) handleInvalidateDashboard(ctx context.Context, args json.RawMessage) (any, error) {
	if err := s.authorize(access.Invalidate); err != nil {
		return nil, err
	}
	var params struct {
		Subject string `json:"subject"`
		Period  string `json:"period"`
	}
	if err := parseArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Period != "" {
		if _, _, err := dashboard.PeriodBounds(params.Period, s.opts.Now()); err != nil {
			return nil, err
		}
	}
	n, err := s.opts.Dashboards.Invalidate(ctx, params.Subject, params.Period)
	if err != nil {
		return nil, err
	}
	return InvalidateResult{Deleted: n}, nil
}

// handleGetMetricStatistics summarizes one metric over [from, to).
func (s *Server) handleGetMetricStatistics(ctx context.Context, args json.RawMessage) (any, error) {
	if err := s.authorize(access.ViewMetrics); err != nil {
		return nil, err
	}
	var params struct {
		Code    string `json:"code"`
		From    string `json:"from"`
		To      string `json:"to"`
		Version string `json:"version"`
	}
	if err := parseArgs(args, &params); err != nil {
		return nil, err
	}
	def, ok := s.opts.Registry.Definition(params.Code)
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", params.Code)
	}
	from, err := s.parseDate(params.From)
	if err != nil {
		return nil, err
	}
	to, err := s.parseDate(params.To)
	if err != nil {
		return nil, err
	}
	version := params.Version
	if version == "" {
		version = s.opts.Version
	}

	stats, err := s.opts.Store.GetStatistics(ctx, def.Code, version, from, to)
	if err != nil {
		return nil, err
	}
	result := StatisticsResult{Statistics: stats}
	if def.Shape == catalogue.ShapeLabel || def.Shape == catalogue.ShapeScoredLabel {
		result.Labels, err = s.opts.Store.LabelDistribution(ctx, def.Code, version, from, to)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// handleGetHotLeads lists callback candidates from the last N days.
func (s *Server) handleGetHotLeads(ctx context.Context, args json.RawMessage) (any, error) {
	if err := s.authorize(access.ViewMetrics); err != nil {
		return nil, err
	}
	params := struct {
		Days  int `json:"days"`
		Limit int `json:"limit"`
	}{Days: 7, Limit: s.opts.LeadLimit}
	if err := parseArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Days <= 0 {
		params.Days = 7
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = s.opts.LeadLimit
	}

	now := s.opts.Now()
	leads, err := s.opts.Store.HotMissedLeads(ctx, s.opts.Version, s.opts.LeadThreshold, now.AddDate(0, 0, -params.Days), now, params.Limit)
	if err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []store.Lead{}
	}
	return HotLeadsResult{Threshold: s.opts.LeadThreshold, Leads: leads}, nil
}

// handleListMetrics describes the catalogue.
func (s *Server) handleListMetrics(_ context.Context, _ json.RawMessage) (any, error) {
	defs := s.opts.Registry.Definitions()
	result := make([]MetricInfo, 0, len(defs))
	for _, d := range defs {
		result = append(result, MetricInfo{
			Code:        d.Code,
			Group:       string(d.Group),
			Shape:       string(d.Shape),
			Method:      string(d.Method),
			Description: d.Description,
		})
	}
	return result, nil
}
