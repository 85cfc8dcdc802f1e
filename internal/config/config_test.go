package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DBPath(), cfg.DBPath)
	assert.Equal(t, "rules_v1", cfg.Catalogue.Version)
	assert.Equal(t, "shift_v1", cfg.Catalogue.Profile)
	assert.Equal(t, 500, cfg.Processor.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Processor.LeaseTTL)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Dashboard.Retention)
	assert.Equal(t, "viewer", cfg.Access.DefaultRole)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Catalogue.Versions)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/cw/test.db
timezone: Europe/Moscow
catalogue:
  version: rules_v2
  versions:
    rules_v2:
      selector: flat_v1
      constants:
        efficiency_threshold_sec: 60
      contexts:
        night_shift:
          speed_answered: 95
processor:
  batch_size: 50
  lease_ttl: 90s
dashboard:
  ttl: 1m
access:
  roles:
    alice: admin
    bob: operator
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cw/test.db", cfg.DBPath)
	assert.Equal(t, "rules_v2", cfg.Catalogue.Version)
	assert.Equal(t, 50, cfg.Processor.BatchSize)
	assert.Equal(t, 4, cfg.Processor.Workers)
	assert.Equal(t, 90*time.Second, cfg.Processor.LeaseTTL)
	assert.Equal(t, time.Minute, cfg.Dashboard.TTL)
	assert.Equal(t, "admin", cfg.Access.Roles["alice"])

	require.Equal(t, []string{"rules_v2"}, cfg.VersionNames())
	v := cfg.Catalogue.Versions["rules_v2"]
	assert.Equal(t, "flat_v1", v.Selector)
	assert.Equal(t, 60.0, v.Constants["efficiency_threshold_sec"])
	assert.Equal(t, 95.0, v.Contexts["night_shift"]["speed_answered"])

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", loc.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CALLWATCH_PROCESSOR_BATCH_SIZE", "25")
	t.Setenv("CALLWATCH_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "processor:\n  batch_size: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Processor.BatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "timezone: Mars/Olympus\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "processor:\n  batch_size: 0\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "processor: [\n"))
	assert.Error(t, err)
}
