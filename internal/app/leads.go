package app

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/output"
	"github.com/blackwell-systems/callwatch/internal/store"
)

var (
	leadsDays  int
	leadsLimit int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List unbooked target calls worth a callback",
	Long: `List recent target calls that ended without a booking but whose forecast
conversion probability is at least leads.threshold, most likely first.`,
	RunE: runLeads,
}

func init() {
	leadsCmd.Flags().IntVar(&leadsDays, "days", 7, "Look-back window in days")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 0, "Maximum leads (default: leads.limit from config)")
	rootCmd.AddCommand(leadsCmd)
}

func runLeads(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.ViewMetrics); err != nil {
		return err
	}
	if leadsDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	limit := leadsLimit
	if limit <= 0 {
		limit = e.cfg.Leads.Limit
	}

	now := time.Now()
	leads, err := e.db.HotMissedLeads(cmd.Context(), e.cfg.Catalogue.Version, e.cfg.Leads.Threshold,
		now.AddDate(0, 0, -leadsDays), now, limit)
	if err != nil {
		return err
	}
	if flagJSON {
		if leads == nil {
			leads = []store.Lead{}
		}
		return printJSON(cmd.OutOrStdout(), leads)
	}
	renderLeads(cmd.OutOrStdout(), leads, e.cfg.Leads.Threshold, e.loc)
	return nil
}

func renderLeads(w io.Writer, leads []store.Lead, threshold float64, loc *time.Location) {
	fmt.Fprintln(w, output.Section(fmt.Sprintf("Hot Leads · forecast ≥ %.2f", threshold)))
	fmt.Fprintln(w)
	if len(leads) == 0 {
		fmt.Fprintf(w, " %s\n\n", output.StyleMuted.Render("No unbooked target calls at or above the threshold."))
		return
	}
	t := output.NewTable("Call", "Occurred", "Operator", "Category", "Forecast")
	for _, l := range leads {
		t.AddRow(
			fmt.Sprintf("#%d", l.Event.ID),
			l.Event.OccurredAt.In(loc).Format(time.DateTime),
			l.Event.Subject,
			l.Event.NormalizedCategory(),
			output.StyleSuccess.Render(fmt.Sprintf("%.0f%%", l.Probability*100)),
		)
	}
	t.Fprint(w)
	fmt.Fprintln(w)
}
