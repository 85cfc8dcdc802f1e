package app

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/config"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/logging"
	"github.com/blackwell-systems/callwatch/internal/output"
	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

// env is everything a command needs, built from the loaded config.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	loc    *time.Location
	db     *store.DB
	reg    *catalogue.Registry
	engine *catalogue.Engine
	proc   *processor.Processor
	dash   *dashboard.Service
	roles  *access.RoleTable
	// auth gates commands. Without --as the local operator is unrestricted.
	auth access.Authorizer
}

// setup loads the config and opens the store, logging to stderr. Callers
// must Close the env.
func setup(cmd *cobra.Command) (*env, error) {
	return setupWithLog(cmd, cmd.ErrOrStderr())
}

// setupWithLog is setup with log output sent to logOut.
func setupWithLog(cmd *cobra.Command, logOut io.Writer) (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagNoColor || !cfg.Output.Color {
		output.SetNoColor(true)
	}

	level := cfg.Log.Level
	if flagVerbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.Log.Format, logOut)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	reg, err := catalogue.Builtin(loc, versionSpecs(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("building catalogue: %w", err)
	}
	roles, err := access.NewRoleTable(cfg.Access.Roles, cfg.Access.DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("access roles: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	engine := catalogue.NewEngine(reg)
	e := &env{
		cfg:    cfg,
		logger: logger,
		loc:    loc,
		db:     db,
		reg:    reg,
		engine: engine,
		proc: processor.New(engine, db, processor.Options{
			Workers:  cfg.Processor.Workers,
			LeaseTTL: cfg.Processor.LeaseTTL,
			Logger:   logger,
		}),
		dash: dashboard.NewService(db, dashboard.Options{
			Version:   cfg.Catalogue.Version,
			TTL:       cfg.Dashboard.TTL,
			Retention: cfg.Dashboard.Retention,
			Location:  loc,
			Logger:    logger,
		}),
		roles: roles,
		auth:  access.AllowAll{},
	}
	if flagActor != "" {
		e.auth = roles
	}
	return e, nil
}

// Close releases the store.
func (e *env) Close() error {
	return e.db.Close()
}

func (e *env) authorize(action access.Action) error {
	return e.auth.Authorize(flagActor, action)
}

// versionSpecs converts the configured derived versions, in name order.
func versionSpecs(cfg *config.Config) []catalogue.VersionSpec {
	names := cfg.VersionNames()
	specs := make([]catalogue.VersionSpec, 0, len(names))
	for _, name := range names {
		vc := cfg.Catalogue.Versions[name]
		specs = append(specs, catalogue.VersionSpec{
			Tag:       name,
			Base:      vc.Base,
			Selector:  vc.Selector,
			Constants: vc.Constants,
			Contexts:  vc.Contexts,
		})
	}
	return specs
}

// parseDate parses YYYY-MM-DD in loc. Empty input is the zero time.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", v)
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
