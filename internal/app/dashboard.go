package app

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/output"
	"github.com/blackwell-systems/callwatch/internal/store"
)

var (
	dashSubject string
	dashPeriod  string
	dashDate    string
	dashRefresh bool

	invalidateSubject string
	invalidatePeriod  string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show an operator or call-center dashboard",
	Long: `Show call volumes, conversion, quality, talk time and risk figures for one
operator (or the whole call center) over a day, week or month. Dashboards are
served from the cache while younger than dashboard.ttl.

Examples:
  callwatch dashboard                           # call center, today
  callwatch dashboard --subject op-17 --period week
  callwatch dashboard --date 2025-03-04 --refresh`,
	RunE: runDashboard,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached dashboards",
	Long: `Delete cached dashboards so the next read recomputes them. --subject and
--period narrow the deletion; with neither every cached dashboard is dropped.`,
	RunE: runInvalidate,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashSubject, "subject", store.AllSubjects, "Operator id, or * for the whole call center")
	dashboardCmd.Flags().StringVar(&dashPeriod, "period", dashboard.PeriodDay, "Period type: day, week or month")
	dashboardCmd.Flags().StringVar(&dashDate, "date", "", "Any date inside the period, YYYY-MM-DD (default: today)")
	dashboardCmd.Flags().BoolVar(&dashRefresh, "refresh", false, "Recompute even if a fresh cached dashboard exists")
	invalidateCmd.Flags().StringVar(&invalidateSubject, "subject", "", "Only this operator id")
	invalidateCmd.Flags().StringVar(&invalidatePeriod, "period", "", "Only this period type")
	rootCmd.AddCommand(dashboardCmd, invalidateCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.ViewDashboard); err != nil {
		return err
	}
	if dashRefresh {
		if err := e.authorize(access.Invalidate); err != nil {
			return err
		}
	}

	ref, err := parseDate(dashDate, e.loc)
	if err != nil {
		return err
	}
	if ref.IsZero() {
		ref = time.Now().In(e.loc)
	}
	start, end, err := dashboard.PeriodBounds(dashPeriod, ref)
	if err != nil {
		return err
	}

	var d dashboard.Dashboard
	if dashRefresh {
		d, err = e.dash.Refresh(cmd.Context(), dashSubject, dashPeriod, start, end)
	} else {
		d, err = e.dash.GetDashboard(cmd.Context(), dashSubject, dashPeriod, start, end)
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), d)
	}
	renderDashboard(cmd.OutOrStdout(), d, e.loc)
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.Invalidate); err != nil {
		return err
	}
	if invalidatePeriod != "" {
		if _, _, err := dashboard.PeriodBounds(invalidatePeriod, time.Now()); err != nil {
			return err
		}
	}
	n, err := e.dash.Invalidate(cmd.Context(), invalidateSubject, invalidatePeriod)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), " %s cached dashboard(s) dropped\n", output.StyleBold.Render(fmt.Sprintf("%d", n)))
	return nil
}

func renderDashboard(w io.Writer, d dashboard.Dashboard, loc *time.Location) {
	subject := d.Subject
	if subject == store.AllSubjects {
		subject = "call center"
	}
	title := fmt.Sprintf("Dashboard · %s · %s from %s", subject, d.PeriodType, d.PeriodStart.In(loc).Format(time.DateOnly))
	fmt.Fprintln(w, output.Section(title))
	fmt.Fprintln(w)

	output.KeyValue(w, "Total calls", fmt.Sprintf("%d", d.TotalCalls))
	output.KeyValue(w, "Accepted", fmt.Sprintf("%d", d.AcceptedCalls))
	output.KeyValue(w, "Missed", fmt.Sprintf("%d (%.1f%%)", d.MissedCalls, d.MissedRate))

	fmt.Fprintln(w, output.Section("Conversion"))
	fmt.Fprintln(w)
	output.KeyValue(w, "Bookings", fmt.Sprintf("%d", d.RecordsCount))
	output.KeyValue(w, "Leads without booking", fmt.Sprintf("%d", d.LeadsNoRecord))
	output.KeyValue(w, "Conversion rate", fmt.Sprintf("%.1f%%", d.ConversionRate))
	output.KeyValue(w, "Expected bookings", fmt.Sprintf("%.2f", d.ExpectedRecords))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Uplift"), output.TrendArrow(d.Uplift, true))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Avg conversion score"), output.ScoreBar(d.AvgConversionScore, 20))

	fmt.Fprintln(w, output.Section("Quality"))
	fmt.Fprintln(w)
	output.KeyValue(w, "Avg score", fmt.Sprintf("%.2f", d.AvgScoreAll))
	output.KeyValue(w, "Avg score, leads", fmt.Sprintf("%.2f", d.AvgScoreLeads))
	output.KeyValue(w, "Avg score, cancellations", fmt.Sprintf("%.2f", d.AvgScoreCancel))
	output.KeyValue(w, "Avg score, complaints", fmt.Sprintf("%.2f", d.AvgScoreComplaint))

	fmt.Fprintln(w, output.Section("Talk Time"))
	fmt.Fprintln(w)
	output.KeyValue(w, "Total", formatSeconds(d.TotalTalkTime))
	output.KeyValue(w, "Avg, all", formatSeconds(d.AvgTalkAll))
	output.KeyValue(w, "Avg, bookings", formatSeconds(d.AvgTalkRecord))
	output.KeyValue(w, "Avg, navigation", formatSeconds(d.AvgTalkNavigation))
	output.KeyValue(w, "Avg, spam", formatSeconds(d.AvgTalkSpam))

	fmt.Fprintln(w, output.Section("Risk"))
	fmt.Fprintln(w)
	output.KeyValue(w, "Cancellations", fmt.Sprintf("%d (%.1f%% share)", d.CancelCalls, d.CancelShare))
	output.KeyValue(w, "Reschedules", fmt.Sprintf("%d", d.RescheduleCalls))
	output.KeyValue(w, "Complaints", fmt.Sprintf("%d", d.ComplaintCalls))
	output.KeyValue(w, "Follow-up needed", fmt.Sprintf("%d", d.FollowupNeeded))
	fmt.Fprintf(w, " %s %s %d  %s %d  %s %d\n", output.StyleLabel.Render("Churn risk"),
		output.RiskLabel("low"), d.ChurnLow,
		output.RiskLabel("medium"), d.ChurnMedium,
		output.RiskLabel("high"), d.ChurnHigh)

	source := "computed"
	if d.FromCache {
		source = "cached"
	}
	fmt.Fprintf(w, "\n %s\n\n", output.StyleMuted.Render(fmt.Sprintf("%s %s · %s · %d/%d calls scored",
		source, d.CachedAt.In(loc).Format(time.DateTime), d.Version, d.ScoredCalls, d.TotalCalls)))
}

func formatSeconds(sec float64) string {
	return (time.Duration(sec * float64(time.Second))).Round(time.Second).String()
}
