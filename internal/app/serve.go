package app

import (
	"context"
	"errors"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/callwatch/internal/server"
	"github.com/blackwell-systems/callwatch/internal/watcher"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dashboards, metrics and runs over HTTP",
	Long: `Start the HTTP API. Requests are authorized by the X-Actor header against
access.roles; unknown actors get access.default_role. Prometheus metrics are
exposed at /metrics.

With --watch the scheduled calculation loop runs in the same process.

Examples:
  callwatch serve
  callwatch serve --addr :8089 --watch`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Also run the calculation watcher")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	addr := serveAddr
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	srv := server.New(server.Options{
		Registry:       e.reg,
		Store:          e.db,
		Dashboards:     e.dash,
		Processor:      e.proc,
		Authorizer:     e.roles,
		Version:        e.cfg.Catalogue.Version,
		Profile:        e.cfg.Catalogue.Profile,
		BatchSize:      e.cfg.Processor.BatchSize,
		Location:       e.loc,
		AllowedOrigins: e.cfg.Server.AllowedOrigins,
		Logger:         e.logger,
	})

	interval, err := watchIntervalFor(e.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	if serveWatch {
		w := e.newWatcher(interval, e.watchJobs(false), func(a watcher.Alert) {
			e.logger.WithLevel(alertLevel(a.Level)).Str("title", a.Title).Msg(a.Message)
		})
		g.Go(func() error {
			if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
