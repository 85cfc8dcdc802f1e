package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/output"
	"github.com/blackwell-systems/callwatch/internal/store"
)

var (
	statsFrom    string
	statsTo      string
	statsVersion string
)

var statsCmd = &cobra.Command{
	Use:   "stats <metric-code>",
	Short: "Summarize one metric over a date range",
	Long: `Show count, mean, min, max and standard deviation of a metric's numeric
values, plus the label distribution for labelled metrics. The range is over
call time; --from is inclusive and --to exclusive, both optional.

Example:
  callwatch stats conversion_score --from 2025-03-01 --to 2025-04-01`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "Start date YYYY-MM-DD, inclusive")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "End date YYYY-MM-DD, exclusive")
	statsCmd.Flags().StringVar(&statsVersion, "version", "", "Catalogue version tag (default: catalogue.version from config)")
	rootCmd.AddCommand(statsCmd)
}

type statsView struct {
	store.Statistics
	Labels []store.LabelCount `json:"labels,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.ViewMetrics); err != nil {
		return err
	}
	code := args[0]
	def, ok := e.reg.Definition(code)
	if !ok {
		return fmt.Errorf("unknown metric %q (see `callwatch catalogue`)", code)
	}
	from, err := parseDate(statsFrom, e.loc)
	if err != nil {
		return err
	}
	to, err := parseDate(statsTo, e.loc)
	if err != nil {
		return err
	}
	version := statsVersion
	if version == "" {
		version = e.cfg.Catalogue.Version
	}

	view := statsView{}
	view.Statistics, err = e.db.GetStatistics(cmd.Context(), code, version, from, to)
	if err != nil {
		return err
	}
	if def.Shape == catalogue.ShapeLabel || def.Shape == catalogue.ShapeScoredLabel {
		view.Labels, err = e.db.LabelDistribution(cmd.Context(), code, version, from, to)
		if err != nil {
			return err
		}
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), view)
	}
	renderStats(cmd.OutOrStdout(), view)
	return nil
}

func renderStats(w io.Writer, v statsView) {
	fmt.Fprintln(w, output.Section(fmt.Sprintf("%s · %s", v.Code, v.Version)))
	fmt.Fprintln(w)
	output.KeyValue(w, "Values", fmt.Sprintf("%d", v.Count))
	if v.Count > 0 {
		output.KeyValue(w, "Mean", fmt.Sprintf("%.3f", v.Avg))
		output.KeyValue(w, "Min", fmt.Sprintf("%.3f", v.Min))
		output.KeyValue(w, "Max", fmt.Sprintf("%.3f", v.Max))
		output.KeyValue(w, "Std dev", fmt.Sprintf("%.3f", v.Stddev))
	}
	if len(v.Labels) > 0 {
		fmt.Fprintln(w)
		t := output.NewTable("Label", "Calls")
		for _, l := range v.Labels {
			t.AddRow(output.RiskLabel(l.Label), fmt.Sprintf("%d", l.Count))
		}
		t.Fprint(w)
	}
	fmt.Fprintln(w)
}
