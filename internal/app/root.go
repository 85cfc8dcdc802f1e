// Package app contains the Cobra command tree for callwatch.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
	flagActor   string
)

var rootCmd = &cobra.Command{
	Use:   "callwatch",
	Short: "Call-center analytics: per-call metrics and operator dashboards",
	Long: `callwatch scores every call event with a versioned catalogue of rule-based
metrics, keeps the scores current with an incremental watermark-driven
processor, and serves per-operator and call-center dashboards from a
time-bounded cache.

Run 'callwatch' with no arguments to see the available commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "callwatch", appVersion)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Use a subcommand:")
		fmt.Fprintln(out, "  import      Load call events from a JSONL feed")
		fmt.Fprintln(out, "  run         Score new call events behind the watermark")
		fmt.Fprintln(out, "  backfill    Recompute metric values for a time window")
		fmt.Fprintln(out, "  dashboard   Show an operator or call-center dashboard")
		fmt.Fprintln(out, "  invalidate  Drop cached dashboards")
		fmt.Fprintln(out, "  call        Show the metric values of one call")
		fmt.Fprintln(out, "  stats       Summarize one metric over a date range")
		fmt.Fprintln(out, "  leads       List unbooked calls worth a callback")
		fmt.Fprintln(out, "  runs        Show watermarks and recent calculation runs")
		fmt.Fprintln(out, "  catalogue   List metric definitions and versions")
		fmt.Fprintln(out, "  serve       Serve the HTTP API")
		fmt.Fprintln(out, "  watch       Keep metrics current and alert on failures")
		fmt.Fprintln(out, "  mcp         Run the MCP stdio server")
		fmt.Fprintln(out, "  doctor      Check whether the setup is healthy")
		return nil
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/callwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagActor, "as", "", "Act as this actor; its configured role gates the command (default: local operator, unrestricted)")
}
