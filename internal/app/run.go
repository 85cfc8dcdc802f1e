package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/output"
	"github.com/blackwell-systems/callwatch/internal/processor"
)

var (
	runVersion   string
	runProfile   string
	runBatchSize int
	runDrain     bool

	backfillFrom string
	backfillTo   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score new call events behind the watermark",
	Long: `Evaluate the metric catalogue over the next batch of call events after the
(version, profile) watermark, persist the values idempotently and advance the
watermark. A run that finds another run holding the lease exits without work.

Examples:
  callwatch run                          # one batch with the configured version
  callwatch run --drain                  # batches until the feed is exhausted
  callwatch run --version rules_v2 --profile flat_v1`,
	RunE: runRun,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute metric values for a time window",
	Long: `Recompute every call event in [--from, --to) under the given version and
profile. Stored values are overwritten in place; the incremental watermark is
left untouched.

Example:
  callwatch backfill --from 2025-03-01 --to 2025-04-01 --version rules_v2`,
	RunE: runBackfill,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, backfillCmd} {
		c.Flags().StringVar(&runVersion, "version", "", "Catalogue version tag (default: catalogue.version from config)")
		c.Flags().StringVar(&runProfile, "profile", "", "Calc profile selector (default: catalogue.profile from config)")
		c.Flags().IntVar(&runBatchSize, "batch-size", 0, "Events per batch (default: processor.batch_size from config)")
	}
	runCmd.Flags().BoolVar(&runDrain, "drain", false, "Keep running batches until no events remain")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Window start date YYYY-MM-DD, inclusive (required)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Window end date YYYY-MM-DD, exclusive (required)")
	_ = backfillCmd.MarkFlagRequired("from")
	_ = backfillCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(runCmd, backfillCmd)
}

// runTarget resolves flags against config defaults.
func (e *env) runTarget() (version, profile string, batchSize int) {
	version, profile, batchSize = runVersion, runProfile, runBatchSize
	if version == "" {
		version = e.cfg.Catalogue.Version
	}
	if profile == "" {
		profile = e.cfg.Catalogue.Profile
	}
	if batchSize <= 0 {
		batchSize = e.cfg.Processor.BatchSize
	}
	return version, profile, batchSize
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.RunIncremental); err != nil {
		return err
	}
	version, profile, batchSize := e.runTarget()

	var rep processor.Report
	if runDrain {
		rep, err = e.proc.Drain(cmd.Context(), version, profile, batchSize)
	} else {
		rep, err = e.proc.RunIncremental(cmd.Context(), version, profile, batchSize)
	}
	if err != nil {
		return runError(rep, err)
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	renderReport(cmd.OutOrStdout(), rep, e)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.authorize(access.RunBackfill); err != nil {
		return err
	}
	start, err := parseDate(backfillFrom, e.loc)
	if err != nil {
		return err
	}
	end, err := parseDate(backfillTo, e.loc)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return errors.New("--from must be before --to")
	}
	version, profile, batchSize := e.runTarget()

	rep, err := e.proc.RunBackfill(cmd.Context(), version, profile, start, end, batchSize)
	if err != nil {
		return runError(rep, err)
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	renderReport(cmd.OutOrStdout(), rep, e)
	return nil
}

func runError(rep processor.Report, err error) error {
	if rep.Processed > 0 {
		return fmt.Errorf("%s run %s failed after %d events: %w", rep.Kind, rep.RunID, rep.Processed, err)
	}
	return fmt.Errorf("%s run failed: %w", rep.Kind, err)
}

func renderReport(w io.Writer, rep processor.Report, e *env) {
	fmt.Fprintln(w, output.Section("Calculation Run"))
	fmt.Fprintln(w)
	output.KeyValue(w, "Kind", rep.Kind)
	output.KeyValue(w, "Version", rep.Version)
	output.KeyValue(w, "Profile", rep.Profile)
	if rep.Skipped && rep.Processed == 0 {
		fmt.Fprintf(w, "\n %s\n\n", output.StyleWarning.Render("Skipped: another run holds the lease."))
		return
	}
	output.KeyValue(w, "Run", rep.RunID)
	output.KeyValue(w, "Events scored", fmt.Sprintf("%d", rep.Processed))
	if rep.Processed > 0 {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Window"),
			formatWindow(rep.Start, rep.End, e.loc))
	}
	output.KeyValue(w, "Duration", rep.Duration.Round(time.Millisecond).String())
	if !rep.To.IsZero() && rep.Kind == processor.KindIncremental {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Watermark"),
			fmt.Sprintf("%s #%d", rep.To.OccurredAt.In(e.loc).Format(time.DateTime), rep.To.EventID))
	}
	fmt.Fprintln(w)
}

func formatWindow(start, end time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s → %s", start.In(loc).Format(time.DateTime), end.In(loc).Format(time.DateTime))
}
