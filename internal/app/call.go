package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/output"
)

var callCmd = &cobra.Command{
	Use:   "call <event-id>",
	Short: "Show the stored metric values of one call",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

type callView struct {
	Event  *calls.Event            `json:"event"`
	Values []catalogue.MetricValue `json:"values"`
}

func runCall(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid event id %q", args[0])
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.ViewMetrics); err != nil {
		return err
	}
	ev, err := e.db.GetEvent(cmd.Context(), id)
	if err != nil {
		return err
	}
	values, err := e.db.GetByEvent(cmd.Context(), id)
	if err != nil {
		return err
	}
	if ev == nil && len(values) == 0 {
		return fmt.Errorf("call %d not found", id)
	}
	if values == nil {
		values = []catalogue.MetricValue{}
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), callView{Event: ev, Values: values})
	}
	renderCall(cmd.OutOrStdout(), id, ev, values, e.loc)
	return nil
}

func renderCall(w io.Writer, id int64, ev *calls.Event, values []catalogue.MetricValue, loc *time.Location) {
	fmt.Fprintln(w, output.Section(fmt.Sprintf("Call #%d", id)))
	fmt.Fprintln(w)
	if ev != nil {
		output.KeyValue(w, "Occurred", ev.OccurredAt.In(loc).Format(time.DateTime))
		output.KeyValue(w, "Operator", ev.Subject)
		output.KeyValue(w, "Category", ev.NormalizedCategory())
		output.KeyValue(w, "Outcome", ev.Outcome)
		output.KeyValue(w, "Target", strconv.FormatBool(ev.IsTarget))
		output.KeyValue(w, "Duration", formatSeconds(ev.DurationSec))
		fmt.Fprintln(w)
	}
	if len(values) == 0 {
		fmt.Fprintf(w, " %s\n\n", output.StyleMuted.Render("Not scored yet. Run `callwatch run` to calculate."))
		return
	}

	t := output.NewTable("Metric", "Group", "Value", "Version", "Context")
	for _, v := range values {
		t.AddRow(v.Code, string(v.Group), formatValue(v), v.Version, string(v.Context))
	}
	t.Fprint(w)
	fmt.Fprintln(w)
}

// formatValue renders whichever parts of a value are set.
func formatValue(v catalogue.MetricValue) string {
	switch {
	case v.Numeric != nil && v.Label != nil:
		return fmt.Sprintf("%s (%s)", strconv.FormatFloat(*v.Numeric, 'f', -1, 64), output.RiskLabel(*v.Label))
	case v.Numeric != nil:
		return strconv.FormatFloat(*v.Numeric, 'f', -1, 64)
	case v.Label != nil:
		return *v.Label
	case len(v.Payload) > 0:
		return string(v.Payload)
	default:
		return "-"
	}
}
