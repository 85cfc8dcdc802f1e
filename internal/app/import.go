package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/output"
)

var importCmd = &cobra.Command{
	Use:   "import <feed.jsonl>...",
	Short: "Load call events from JSON-lines feed files",
	Long: `Append finalized call events to the local feed table. Events already
present (by id) are left untouched, so re-importing a file is harmless.
New events are scored by the next ` + "`callwatch run`" + `.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	var read, inserted int
	for _, path := range args {
		events, err := calls.ReadFeedFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n, err := e.db.InsertEvents(cmd.Context(), events)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		e.logger.Debug().Str("file", path).Int("read", len(events)).Int("inserted", n).Msg("feed imported")
		read += len(events)
		inserted += n
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), map[string]int{"read": read, "inserted": inserted})
	}
	fmt.Fprintf(cmd.OutOrStdout(), " Imported %s new call(s) %s\n",
		output.StyleBold.Render(fmt.Sprintf("%d", inserted)),
		output.StyleMuted.Render(fmt.Sprintf("(%d read, %d already present)", read, read-inserted)))
	return nil
}
