package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

const testFeed = `{"id":1,"occurred_at":"2025-03-04T09:00:00Z","subject":"op-1","category":"Booking Success","outcome":"record","is_target":true,"duration_sec":45,"quality_score":80}
{"id":2,"occurred_at":"2025-03-04T10:00:00Z","subject":"op-1","category":"lead_no_booking","outcome":"lead_no_record","is_target":true,"duration_sec":120}

{"id":3,"occurred_at":"2025-03-04T11:00:00Z","subject":"op-2","duration_sec":0}
`

// testEnv writes a config and a feed into a temp home and returns their paths.
func testEnv(t *testing.T) (cfgPath, feedPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := "db_path: " + filepath.Join(dir, "callwatch.db") + `
log:
  level: error
output:
  color: false
access:
  default_role: viewer
  roles:
    ops: operator
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	feedPath = filepath.Join(dir, "feed.jsonl")
	require.NoError(t, os.WriteFile(feedPath, []byte(testFeed), 0o644))
	return cfgPath, feedPath
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// in package variables between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func executeJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := execute(t, append(args, "--json")...)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{
		"import", "run", "backfill", "dashboard", "invalidate", "call", "stats",
		"leads", "runs", "catalogue", "serve", "watch", "mcp", "doctor",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestImportRunAndDashboard(t *testing.T) {
	cfg, feed := testEnv(t)

	imported := executeJSON[map[string]int](t, "--config", cfg, "import", feed)
	assert.Equal(t, 3, imported["read"])
	assert.Equal(t, 3, imported["inserted"])

	again := executeJSON[map[string]int](t, "--config", cfg, "import", feed)
	assert.Equal(t, 0, again["inserted"])

	rep := executeJSON[processor.Report](t, "--config", cfg, "run", "--drain")
	assert.Equal(t, processor.KindIncremental, rep.Kind)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, int64(3), rep.To.EventID)

	rep = executeJSON[processor.Report](t, "--config", cfg, "run")
	assert.Equal(t, 0, rep.Processed)

	d := executeJSON[dashboard.Dashboard](t, "--config", cfg, "dashboard", "--date", "2025-03-04")
	assert.Equal(t, store.AllSubjects, d.Subject)
	assert.Equal(t, dashboard.PeriodDay, d.PeriodType)
	assert.Equal(t, 3, d.TotalCalls)
	assert.Equal(t, 1, d.MissedCalls)
	assert.Equal(t, 1, d.RecordsCount)
	assert.Equal(t, 1, d.LeadsNoRecord)
	assert.False(t, d.FromCache)

	d = executeJSON[dashboard.Dashboard](t, "--config", cfg, "dashboard", "--date", "2025-03-04")
	assert.True(t, d.FromCache)

	op := executeJSON[dashboard.Dashboard](t, "--config", cfg, "dashboard", "--date", "2025-03-04", "--subject", "op-1", "--period", "week")
	assert.Equal(t, 2, op.TotalCalls)
	assert.Equal(t, dashboard.PeriodWeek, op.PeriodType)

	dropped := executeJSON[map[string]int64](t, "--config", cfg, "invalidate", "--period", "day")
	assert.Equal(t, int64(1), dropped["deleted"])

	call := executeJSON[callView](t, "--config", cfg, "call", "1")
	require.NotNil(t, call.Event)
	assert.Equal(t, "op-1", call.Event.Subject)
	assert.NotEmpty(t, call.Values)

	runs := executeJSON[runsView](t, "--config", cfg, "runs")
	require.Len(t, runs.Watermarks, 1)
	assert.Equal(t, int64(3), runs.Watermarks[0].Cursor.EventID)
	assert.NotEmpty(t, runs.Runs)
}

func TestDashboardRendersText(t *testing.T) {
	cfg, feed := testEnv(t)
	_, err := execute(t, "--config", cfg, "import", feed)
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "run")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "dashboard", "--date", "2025-03-04")
	require.NoError(t, err)
	assert.Contains(t, out, "call center")
	assert.Contains(t, out, "Total calls")
	assert.Contains(t, out, "Churn risk")
	assert.Contains(t, out, "computed")
}

func TestStats(t *testing.T) {
	cfg, feed := testEnv(t)
	_, err := execute(t, "--config", cfg, "import", feed)
	require.NoError(t, err)
	_, err = execute(t, "--config", cfg, "run")
	require.NoError(t, err)

	v := executeJSON[statsView](t, "--config", cfg, "stats", "churn_risk_level")
	assert.Equal(t, "churn_risk_level", v.Code)
	assert.Equal(t, catalogue.DefaultVersionTag, v.Version)
	assert.NotEmpty(t, v.Labels)

	_, err = execute(t, "--config", cfg, "stats", "no_such_metric")
	assert.ErrorContains(t, err, "unknown metric")
}

func TestRoleGating(t *testing.T) {
	cfg, feed := testEnv(t)
	_, err := execute(t, "--config", cfg, "import", feed)
	require.NoError(t, err)

	_, err = execute(t, "--config", cfg, "--as", "guest", "run")
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = execute(t, "--config", cfg, "--as", "OPS", "backfill", "--from", "2025-03-01", "--to", "2025-04-01")
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = execute(t, "--config", cfg, "--as", "ops", "run")
	assert.NoError(t, err)

	_, err = execute(t, "--config", cfg, "--as", "guest", "dashboard", "--date", "2025-03-04", "--refresh")
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestBackfill(t *testing.T) {
	cfg, feed := testEnv(t)
	_, err := execute(t, "--config", cfg, "import", feed)
	require.NoError(t, err)

	rep := executeJSON[processor.Report](t, "--config", cfg, "backfill", "--from", "2025-03-04", "--to", "2025-03-05")
	assert.Equal(t, processor.KindBackfill, rep.Kind)
	assert.Equal(t, 3, rep.Processed)

	// Backfill leaves the incremental watermark alone.
	runs := executeJSON[runsView](t, "--config", cfg, "runs")
	for _, wm := range runs.Watermarks {
		assert.True(t, wm.Cursor.IsZero())
	}

	_, err = execute(t, "--config", cfg, "backfill", "--from", "2025-03-05", "--to", "2025-03-04")
	assert.ErrorContains(t, err, "--from must be before --to")
}

func TestInputValidation(t *testing.T) {
	cfg, _ := testEnv(t)

	_, err := execute(t, "--config", cfg, "invalidate", "--period", "year")
	assert.ErrorIs(t, err, dashboard.ErrUnknownPeriod)

	_, err = execute(t, "--config", cfg, "dashboard", "--date", "04/03/2025")
	assert.ErrorContains(t, err, "invalid date")

	_, err = execute(t, "--config", cfg, "call", "abc")
	assert.ErrorContains(t, err, "invalid event id")

	_, err = execute(t, "--config", cfg, "call", "42")
	assert.ErrorContains(t, err, "not found")

	_, err = execute(t, "--config", cfg, "run", "--version", "rules_v9")
	assert.ErrorIs(t, err, catalogue.ErrUnknownVersion)
}

func TestCatalogueListsBuiltins(t *testing.T) {
	cfg, _ := testEnv(t)
	v := executeJSON[catalogueView](t, "--config", cfg, "catalogue")
	assert.NotEmpty(t, v.Metrics)
	require.NotEmpty(t, v.Versions)
	assert.Equal(t, catalogue.DefaultVersionTag, v.Versions[0].Tag)
	assert.True(t, v.Versions[0].Active)
	assert.Contains(t, v.Selectors, catalogue.SelectorShift)
	assert.Contains(t, v.Selectors, catalogue.SelectorFlat)
}

func TestDoctorReportsBacklog(t *testing.T) {
	cfg, feed := testEnv(t)
	_, err := execute(t, "--config", cfg, "import", feed)
	require.NoError(t, err)

	out := executeJSON[doctorOutput](t, "--config", cfg, "doctor")
	byName := make(map[string]doctorCheck)
	for _, c := range out.Checks {
		byName[c.Name] = c
	}
	assert.True(t, byName["SQLite database"].Passed)
	assert.True(t, byName["Catalogue"].Passed)
	assert.True(t, strings.Contains(byName["Watermark"].Message, "3 event(s) pending"), byName["Watermark"].Message)
	assert.False(t, byName["Watch daemon"].Passed)
	assert.Equal(t, len(out.Checks), out.TotalCount)
}
