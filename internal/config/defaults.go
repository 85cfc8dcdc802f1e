// Package config provides configuration loading and defaults for callwatch.
package config

import "time"

// DefaultConfigDir is the default location for callwatch configuration.
const DefaultConfigDir = "~/.config/callwatch"

// DefaultDBName is the filename for the SQLite database.
const DefaultDBName = "callwatch.db"

// DefaultConfigFile is the filename for the YAML config.
const DefaultConfigFile = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. CALLWATCH_PROCESSOR_BATCH_SIZE.
const EnvPrefix = "CALLWATCH"

// DefaultTimezone anchors calc profiles and dashboard periods.
const DefaultTimezone = "UTC"

// DefaultCatalogue selects the built-in rule set and shift profile.
var DefaultCatalogue = Catalogue{
	Version: "rules_v1",
	Profile: "shift_v1",
}

// DefaultProcessor holds the default batch processing settings.
var DefaultProcessor = Processor{
	BatchSize: 500,
	Workers:   4,
	LeaseTTL:  5 * time.Minute,
	Interval:  time.Minute,
}

// DefaultDashboard holds the default cache settings.
var DefaultDashboard = Dashboard{
	TTL:             5 * time.Minute,
	Retention:       7 * 24 * time.Hour,
	CleanupInterval: time.Hour,
}

// DefaultLeads holds the default hot-lead query settings.
var DefaultLeads = Leads{
	Threshold: 0.3,
	Limit:     20,
}

// DefaultServer holds the default HTTP settings.
var DefaultServer = Server{
	Addr:           "127.0.0.1:8089",
	AllowedOrigins: []string{},
}

// DefaultAccess lets unknown actors read but not recompute.
var DefaultAccess = Access{
	DefaultRole: "viewer",
}

// DefaultLog holds the default logging settings.
var DefaultLog = Log{
	Level:  "info",
	Format: "auto",
}

// DefaultOutput holds the default output preferences.
var DefaultOutput = Output{
	Color: true,
	Width: 80,
}
