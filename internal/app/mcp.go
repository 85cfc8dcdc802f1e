package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP stdio server exposing dashboards and metrics",
	Long: `Start a Model Context Protocol stdio server so an assistant can query
callwatch. The server exposes these tools:

  get_dashboard          Operator or call-center rollup for a day, week or month
  get_call_metrics       Stored metric values of one call
  invalidate_dashboard   Drop cached dashboards
  get_metric_statistics  Count, mean, min, max and std dev of one metric
  get_hot_leads          Unbooked target calls likely to convert on a callback
  list_metrics           The metric catalogue

Tool calls are authorized as the --as actor when it is given.

Add to an MCP client configuration:
  {"mcpServers":{"callwatch":{"command":"callwatch","args":["mcp"]}}}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	srv := mcp.NewServer(mcp.Options{
		Registry:      e.reg,
		Store:         e.db,
		Dashboards:    e.dash,
		Authorizer:    e.auth,
		Actor:         flagActor,
		Version:       e.cfg.Catalogue.Version,
		Location:      e.loc,
		LeadThreshold: e.cfg.Leads.Threshold,
		LeadLimit:     e.cfg.Leads.Limit,
		Logger:        e.logger,
	})
	return srv.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
}
