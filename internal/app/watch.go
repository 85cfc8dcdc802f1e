package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/config"
	"github.com/blackwell-systems/callwatch/internal/watcher"
)

var (
	watchDaemon      bool
	watchInterval    string
	watchStop        bool
	watchQuiet       bool
	watchAllVersions bool
	watchNotify      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Score new calls on a schedule and alert on failures and hot leads",
	Long: `Run the calculation pipeline periodically: drain new call events into
metric values for the active catalogue version, expire stale dashboards and
alert when a run fails, a lease stays held or unbooked hot leads pile up.

Examples:
  callwatch watch                      # run in foreground (ctrl-c to stop)
  callwatch watch --daemon             # run in background, write PID file
  callwatch watch --interval 30s       # check every 30 seconds (default: processor.interval)
  callwatch watch --all-versions       # keep every catalogue version current
  callwatch watch --stop               # stop the background daemon`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "Run in background mode (write PID file, log to file)")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "Check interval as duration string (e.g. 30s, 5m)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop a running background daemon")
	watchCmd.Flags().BoolVar(&watchQuiet, "quiet", false, "Suppress terminal output, only send notifications")
	watchCmd.Flags().BoolVar(&watchAllVersions, "all-versions", false, "Drain every registered catalogue version, not just the active one")
	watchCmd.Flags().BoolVar(&watchNotify, "notify", true, "Send desktop notifications")
	rootCmd.AddCommand(watchCmd)
}

// pidFilePath returns the path to the daemon PID file.
func pidFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.pid")
}

// logFilePath returns the path to the daemon log file.
func logFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.log")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchStop {
		return stopDaemon(cmd.OutOrStdout())
	}
	if watchDaemon {
		return runDaemon(cmd)
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return runForeground(cmd, e)
}

// watchIntervalFor resolves --interval against processor.interval.
func watchIntervalFor(cfg *config.Config) (time.Duration, error) {
	if watchInterval == "" {
		return cfg.Processor.Interval, nil
	}
	interval, err := time.ParseDuration(watchInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", watchInterval, err)
	}
	if interval < 10*time.Second {
		return 0, fmt.Errorf("interval must be at least 10s, got %s", interval)
	}
	return interval, nil
}

// watchJobs returns the active (version, profile) pair, plus every other
// registered version under its own selector when all is set.
func (e *env) watchJobs(all bool) []watcher.Job {
	active := watcher.Job{Version: e.cfg.Catalogue.Version, Profile: e.cfg.Catalogue.Profile}
	jobs := []watcher.Job{active}
	if !all {
		return jobs
	}
	for _, tag := range e.reg.VersionTags() {
		if tag == active.Version {
			continue
		}
		v, err := e.reg.Version(tag)
		if err != nil {
			continue
		}
		profile := v.Selector
		if profile == "" {
			profile = active.Profile
		}
		jobs = append(jobs, watcher.Job{Version: tag, Profile: profile})
	}
	return jobs
}

// newWatcher builds the watcher over e's processor, dashboard cache and store.
func (e *env) newWatcher(interval time.Duration, jobs []watcher.Job, alertFn func(watcher.Alert)) *watcher.Watcher {
	return watcher.New(e.proc, e.dash, e.db, watcher.Options{
		Jobs:            jobs,
		BatchSize:       e.cfg.Processor.BatchSize,
		Interval:        interval,
		CleanupInterval: e.cfg.Dashboard.CleanupInterval,
		LeadThreshold:   e.cfg.Leads.Threshold,
		LeadWindow:      24 * time.Hour,
		AlertFn:         alertFn,
		Logger:          e.logger,
	})
}

// runForeground runs the watcher in the foreground with live terminal output.
func runForeground(cmd *cobra.Command, e *env) error {
	if err := e.authorize(access.RunIncremental); err != nil {
		return err
	}
	interval, err := watchIntervalFor(e.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	out := cmd.OutOrStdout()
	jobs := e.watchJobs(watchAllVersions)
	if !watchQuiet {
		fmt.Fprintf(out, "callwatch watching %s... (checking every %s)\n", jobList(jobs), interval)
	}

	alertFn := func(a watcher.Alert) {
		if watchNotify {
			_ = watcher.Notify(a)
		}
		if !watchQuiet {
			printAlert(out, a)
		}
	}

	err = e.newWatcher(interval, jobs, alertFn).Run(ctx)
	if errors.Is(err, context.Canceled) {
		if !watchQuiet {
			fmt.Fprintln(out, "\nStopped.")
		}
		return nil
	}
	return err
}

// runDaemon sets up PID and log files, then runs the watcher. The actual
// backgrounding should be done by the caller (nohup, &, etc.) since Go
// cannot reliably fork.
func runDaemon(cmd *cobra.Command) error {
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	if pid, err := readPID(); err == nil {
		if processExists(pid) {
			return fmt.Errorf("daemon already running (PID %d). Use --stop to stop it", pid)
		}
		// Stale PID file.
		_ = os.Remove(pidFilePath())
	}

	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	e, err := setupWithLog(cmd, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	if err := e.authorize(access.RunIncremental); err != nil {
		return err
	}
	interval, err := watchIntervalFor(e.cfg)
	if err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() { _ = os.Remove(pidFilePath()) }()

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	jobs := e.watchJobs(watchAllVersions)
	e.logger.Info().Int("pid", pid).Dur("interval", interval).Str("jobs", jobList(jobs)).Msg("daemon started")

	alertFn := func(a watcher.Alert) {
		if watchNotify {
			_ = watcher.Notify(a)
		}
		e.logger.WithLevel(alertLevel(a.Level)).Str("title", a.Title).Msg(a.Message)
	}

	err = e.newWatcher(interval, jobs, alertFn).Run(ctx)
	if errors.Is(err, context.Canceled) {
		e.logger.Info().Msg("daemon stopped")
		return nil
	}
	return err
}

// readPID reads the daemon PID from the PID file.
func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func jobList(jobs []watcher.Job) string {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.String()
	}
	return strings.Join(names, ", ")
}

// printAlert formats and prints an alert to the terminal.
func printAlert(w io.Writer, a watcher.Alert) {
	timestamp := a.Time.Format("15:04:05")
	fmt.Fprintf(w, "[%s] %s %s\n", timestamp, alertIcon(a.Level), a.Title)
	if a.Message != "" {
		fmt.Fprintf(w, "         %s\n", a.Message)
	}
}

// alertIcon returns the terminal indicator for an alert level.
func alertIcon(level string) string {
	switch level {
	case "critical":
		return "\xf0\x9f\x94\xb4" // red circle
	case "warning":
		return "\xe2\x9a\xa0\xef\xb8\x8f" // warning sign
	case "info":
		return "\xe2\x9c\x93" // check mark
	default:
		return " "
	}
}

// alertLevel maps an alert level to the daemon log level.
func alertLevel(level string) zerolog.Level {
	switch level {
	case "critical":
		return zerolog.ErrorLevel
	case "warning":
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
