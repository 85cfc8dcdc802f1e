package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/config"
	"github.com/blackwell-systems/callwatch/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether the callwatch setup is healthy",
	Long: `Run a series of health checks against your callwatch configuration,
database and calculation state. Prints a pass/fail line for each check
and a summary of how many checks passed.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck holds the result of a single health check.
type doctorCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// doctorOutput is the JSON-serializable result of the doctor command.
type doctorOutput struct {
	Checks      []doctorCheck `json:"checks"`
	PassedCount int           `json:"passed"`
	TotalCount  int           `json:"total"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := []doctorCheck{checkConfigFile(flagConfig)}

	e, err := setup(cmd)
	if err != nil {
		checks = append(checks, doctorCheck{Name: "Setup", Message: err.Error()})
	} else {
		defer func() { _ = e.Close() }()
		ctx := cmd.Context()
		checks = append(checks,
			doctorCheck{Name: "Timezone", Passed: true, Message: e.loc.String()},
			checkCatalogue(e),
			checkDatabase(e),
			checkFeed(ctx, e),
			checkBacklog(ctx, e),
			checkCache(ctx, e),
		)
	}
	checks = append(checks, checkWatchDaemon())

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, doctorOutput{
			Checks:      checks,
			PassedCount: passed,
			TotalCount:  len(checks),
		})
	}

	fmt.Fprintln(out, output.Section("Doctor"))
	fmt.Fprintln(out)
	for _, c := range checks {
		renderDoctorCheck(out, c)
	}
	fmt.Fprintln(out)
	summary := fmt.Sprintf("%d/%d checks passed", passed, len(checks))
	if passed == len(checks) {
		fmt.Fprintf(out, " %s\n\n", output.StyleSuccess.Render(summary))
	} else {
		fmt.Fprintf(out, " %s\n\n", output.StyleWarning.Render(summary))
	}
	return nil
}

// renderDoctorCheck prints a single check result line.
func renderDoctorCheck(w io.Writer, c doctorCheck) {
	var indicator string
	if c.Passed {
		indicator = output.StyleSuccess.Render("✓")
	} else {
		indicator = output.StyleWarning.Render("✗")
	}
	label := output.StyleBold.Render(c.Name)
	detail := output.StyleMuted.Render(c.Message)
	fmt.Fprintf(w, "  %s  %-30s %s\n", indicator, label, detail)
}

// checkConfigFile reports which config file is in effect. Running on
// defaults passes.
func checkConfigFile(path string) doctorCheck {
	if path == "" {
		path = filepath.Join(config.ConfigDir(), config.DefaultConfigFile)
		if _, err := os.Stat(path); err != nil {
			return doctorCheck{Name: "Config file", Passed: true, Message: "none, using defaults"}
		}
		return doctorCheck{Name: "Config file", Passed: true, Message: path}
	}
	if _, err := os.Stat(path); err != nil {
		return doctorCheck{Name: "Config file", Message: fmt.Sprintf("not found: %s", path)}
	}
	return doctorCheck{Name: "Config file", Passed: true, Message: path}
}

// checkCatalogue verifies the active version and profile resolve.
func checkCatalogue(e *env) doctorCheck {
	version, profile := e.cfg.Catalogue.Version, e.cfg.Catalogue.Profile
	if _, err := e.reg.Version(version); err != nil {
		return doctorCheck{Name: "Catalogue", Message: err.Error()}
	}
	if _, err := e.reg.Selector(profile); err != nil {
		return doctorCheck{Name: "Catalogue", Message: err.Error()}
	}
	return doctorCheck{
		Name:   "Catalogue",
		Passed: true,
		Message: fmt.Sprintf("%s/%s, %d metrics, %d version(s)",
			version, profile, len(e.reg.Definitions()), len(e.reg.VersionTags())),
	}
}

// checkDatabase verifies the SQLite database answers.
func checkDatabase(e *env) doctorCheck {
	if err := e.db.Ping(); err != nil {
		return doctorCheck{Name: "SQLite database", Message: fmt.Sprintf("%s: %v", e.cfg.DBPath, err)}
	}
	return doctorCheck{Name: "SQLite database", Passed: true, Message: e.cfg.DBPath}
}

// checkFeed verifies there are call events to score.
func checkFeed(ctx context.Context, e *env) doctorCheck {
	n, err := e.db.CountEvents(ctx)
	if err != nil {
		return doctorCheck{Name: "Call events", Message: err.Error()}
	}
	if n == 0 {
		return doctorCheck{Name: "Call events", Message: "feed is empty (run 'callwatch import')"}
	}
	values, err := e.db.CountValues(ctx, e.cfg.Catalogue.Version)
	if err != nil {
		return doctorCheck{Name: "Call events", Message: err.Error()}
	}
	return doctorCheck{
		Name:    "Call events",
		Passed:  true,
		Message: fmt.Sprintf("%d events, %d values under %s", n, values, e.cfg.Catalogue.Version),
	}
}

// checkBacklog reports how far the active watermark trails the feed. A
// backlog of a full batch or more fails.
func checkBacklog(ctx context.Context, e *env) doctorCheck {
	wm, err := e.db.GetWatermark(ctx, e.cfg.Catalogue.Version, e.cfg.Catalogue.Profile)
	if err != nil {
		return doctorCheck{Name: "Watermark", Message: err.Error()}
	}
	batch := e.cfg.Processor.BatchSize
	pending, err := e.db.EventsAfter(ctx, wm.Cursor, batch)
	if err != nil {
		return doctorCheck{Name: "Watermark", Message: err.Error()}
	}
	switch {
	case len(pending) == 0:
		return doctorCheck{Name: "Watermark", Passed: true, Message: "up to date"}
	case len(pending) < batch:
		return doctorCheck{Name: "Watermark", Passed: true, Message: fmt.Sprintf("%d event(s) pending", len(pending))}
	default:
		return doctorCheck{Name: "Watermark", Message: fmt.Sprintf("%d+ events pending (run 'callwatch run --drain')", batch)}
	}
}

// checkCache reports the cached dashboard count.
func checkCache(ctx context.Context, e *env) doctorCheck {
	n, err := e.db.CountAggregates(ctx)
	if err != nil {
		return doctorCheck{Name: "Dashboard cache", Message: err.Error()}
	}
	return doctorCheck{
		Name:    "Dashboard cache",
		Passed:  true,
		Message: fmt.Sprintf("%d cached, ttl %s", n, e.cfg.Dashboard.TTL),
	}
}

// checkWatchDaemon checks whether the watch daemon PID file exists and the process is running.
func checkWatchDaemon() doctorCheck {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return doctorCheck{
			Name:    "Watch daemon",
			Passed:  false,
			Message: "not running (no PID file)",
		}
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return doctorCheck{
			Name:    "Watch daemon",
			Passed:  false,
			Message: fmt.Sprintf("invalid PID in file: %q", pidStr),
		}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return doctorCheck{
			Name:    "Watch daemon",
			Passed:  false,
			Message: fmt.Sprintf("PID %d not found", pid),
		}
	}

	// Signal 0 checks process existence without sending an actual signal.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return doctorCheck{
			Name:    "Watch daemon",
			Passed:  false,
			Message: fmt.Sprintf("PID %d is not running (stale PID file)", pid),
		}
	}

	return doctorCheck{
		Name:    "Watch daemon",
		Passed:  true,
		Message: fmt.Sprintf("running (PID %d)", pid),
	}
}
