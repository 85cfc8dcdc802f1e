package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level callwatch configuration.
type Config struct {
	DBPath    string    `mapstructure:"db_path"`
	Timezone  string    `mapstructure:"timezone"`
	Catalogue Catalogue `mapstructure:"catalogue"`
	Processor Processor `mapstructure:"processor"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	Leads     Leads     `mapstructure:"leads"`
	Server    Server    `mapstructure:"server"`
	Access    Access    `mapstructure:"access"`
	Log       Log       `mapstructure:"log"`
	Output    Output    `mapstructure:"output"`
}

// Catalogue selects the active rule set and declares derived versions.
type Catalogue struct {
	Version  string                   `mapstructure:"version"`
	Profile  string                   `mapstructure:"profile"`
	Versions map[string]VersionConfig `mapstructure:"versions"`
}

// VersionConfig derives a catalogue version from a base version by
// overriding named constants, optionally per calc-profile context.
type VersionConfig struct {
	Base      string                        `mapstructure:"base"`
	Selector  string                        `mapstructure:"selector"`
	Constants map[string]float64            `mapstructure:"constants"`
	Contexts  map[string]map[string]float64 `mapstructure:"contexts"`
}

// Processor defines batch processing settings.
type Processor struct {
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
	Interval  time.Duration `mapstructure:"interval"`
}

// Dashboard defines aggregate cache settings.
type Dashboard struct {
	TTL             time.Duration `mapstructure:"ttl"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Leads defines the hot missed-lead query.
type Leads struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

// Server defines the HTTP listener.
type Server struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Access maps actors to roles. Actor names are case-insensitive.
type Access struct {
	DefaultRole string            `mapstructure:"default_role"`
	Roles       map[string]string `mapstructure:"roles"`
}

// Log defines logging settings. Format is auto, json or console.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
	Width int  `mapstructure:"width"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied. A .env file in the working
// directory and CALLWATCH_* environment variables override the file.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults.
	v.SetDefault("db_path", DBPath())
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("catalogue.version", DefaultCatalogue.Version)
	v.SetDefault("catalogue.profile", DefaultCatalogue.Profile)
	v.SetDefault("processor.batch_size", DefaultProcessor.BatchSize)
	v.SetDefault("processor.workers", DefaultProcessor.Workers)
	v.SetDefault("processor.lease_ttl", DefaultProcessor.LeaseTTL)
	v.SetDefault("processor.interval", DefaultProcessor.Interval)
	v.SetDefault("dashboard.ttl", DefaultDashboard.TTL)
	v.SetDefault("dashboard.retention", DefaultDashboard.Retention)
	v.SetDefault("dashboard.cleanup_interval", DefaultDashboard.CleanupInterval)
	v.SetDefault("leads.threshold", DefaultLeads.Threshold)
	v.SetDefault("leads.limit", DefaultLeads.Limit)
	v.SetDefault("server.addr", DefaultServer.Addr)
	v.SetDefault("server.allowed_origins", DefaultServer.AllowedOrigins)
	v.SetDefault("access.default_role", DefaultAccess.DefaultRole)
	v.SetDefault("log.level", DefaultLog.Level)
	v.SetDefault("log.format", DefaultLog.Format)
	v.SetDefault("output.color", DefaultOutput.Color)
	v.SetDefault("output.width", DefaultOutput.Width)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		configDir := expandPath(DefaultConfigDir)
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file if it exists; missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Only return error for problems other than file not found.
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be positive, got %d", c.Processor.BatchSize)
	}
	if c.Processor.Workers <= 0 {
		return fmt.Errorf("processor.workers must be positive, got %d", c.Processor.Workers)
	}
	if c.Dashboard.TTL <= 0 {
		return fmt.Errorf("dashboard.ttl must be positive, got %s", c.Dashboard.TTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// VersionNames returns the derived catalogue version tags, sorted.
func (c *Config) VersionNames() []string {
	names := make([]string, 0, len(c.Catalogue.Versions))
	for name := range c.Catalogue.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DBPath returns the full path to the default SQLite database.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
