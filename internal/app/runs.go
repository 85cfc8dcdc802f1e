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

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show watermarks and recent calculation runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of recent runs to show")
	rootCmd.AddCommand(runsCmd)
}

type runsView struct {
	Watermarks []store.Watermark `json:"watermarks"`
	Runs       []store.Run       `json:"runs"`
}

func runRuns(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.ViewMetrics); err != nil {
		return err
	}
	view := runsView{}
	view.Watermarks, err = e.db.ListWatermarks(cmd.Context())
	if err != nil {
		return err
	}
	view.Runs, err = e.db.RecentRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		if view.Watermarks == nil {
			view.Watermarks = []store.Watermark{}
		}
		if view.Runs == nil {
			view.Runs = []store.Run{}
		}
		return printJSON(cmd.OutOrStdout(), view)
	}
	renderRuns(cmd.OutOrStdout(), view, time.Now(), e.loc)
	return nil
}

func renderRuns(w io.Writer, v runsView, now time.Time, loc *time.Location) {
	fmt.Fprintln(w, output.Section("Watermarks"))
	fmt.Fprintln(w)
	if len(v.Watermarks) == 0 {
		fmt.Fprintf(w, " %s\n", output.StyleMuted.Render("No incremental run has completed yet."))
	} else {
		t := output.NewTable("Version", "Profile", "Last call", "Event", "Lease")
		for _, wm := range v.Watermarks {
			last := "-"
			if !wm.Cursor.IsZero() {
				last = wm.Cursor.OccurredAt.In(loc).Format(time.DateTime)
			}
			lease := output.StyleMuted.Render("free")
			if wm.LeaseOwner != "" && wm.LeaseExpiresAt.After(now) {
				lease = output.StyleWarning.Render("held until " + wm.LeaseExpiresAt.In(loc).Format(time.TimeOnly))
			}
			t.AddRow(wm.Version, wm.Profile, last, fmt.Sprintf("#%d", wm.Cursor.EventID), lease)
		}
		t.Fprint(w)
	}

	fmt.Fprintln(w, output.Section("Recent Runs"))
	fmt.Fprintln(w)
	if len(v.Runs) == 0 {
		fmt.Fprintf(w, " %s\n\n", output.StyleMuted.Render("No runs recorded."))
		return
	}
	t := output.NewTable("Started", "Kind", "Version", "Profile", "Events", "Status")
	for _, r := range v.Runs {
		status := output.StyleSuccess.Render(r.Status)
		if r.Error != "" {
			status = output.StyleError.Render(r.Status)
		}
		t.AddRow(r.StartedAt.In(loc).Format(time.DateTime), r.Kind, r.Version, r.Profile,
			fmt.Sprintf("%d", r.Processed), status)
	}
	t.Fprint(w)
	fmt.Fprintln(w)
}
