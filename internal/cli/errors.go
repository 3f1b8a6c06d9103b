package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewErrorsCommand() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show recent errors from debug logs",
		Long: `Scan the debug logs under the Claude directory for error signatures.
Only log files modified within the last --recent days are read.`,
		Example: `  # Errors from the last week
  agent-index errors

  # Errors from today and yesterday
  agent-index errors --recent 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runErrors(cmd.Context(), cmd.OutOrStdout(), recent)
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 7, "Number of days of logs to scan")

	return cmd
}

func runErrors(ctx context.Context, out io.Writer, days int) error {
	return withReporter(func(r *report.Reporter) error {
		found, err := r.Errors(ctx, days)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, found)
		}
		printErrors(out, found)
		return nil
	})
}

func printErrors(w io.Writer, found []models.DebugError) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No errors found in recent debug logs.")
		return
	}

	printTitle(w, fmt.Sprintf("%d errors", len(found)))
	tw := newTable(w, "WHEN", "FILE", "LINE", "MESSAGE")
	for _, e := range found {
		row(tw, ago(e.Timestamp), filepath.Base(e.File), e.Line, oneLine(e.Content, 100))
	}
	tw.Flush()
}
