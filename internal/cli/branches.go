package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewBranchesCommand() *cobra.Command {
	var branch string
	var limit int

	cmd := &cobra.Command{
		Use:   "branches",
		Short: "Show activity per git branch",
		Long:  `Group indexed sessions by the git branch they ran on, most recently active first.`,
		Example: `  # Every branch
  agent-index branches

  # Branches containing "feature"
  agent-index branches --branch feature`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranches(cmd.Context(), cmd.OutOrStdout(), branch, limit)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Only branches containing this text")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of branches to show")

	return cmd
}

func runBranches(ctx context.Context, out io.Writer, branch string, limit int) error {
	return withReporter(func(r *report.Reporter) error {
		stats, err := r.Branches(ctx, branch, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, stats)
		}
		printBranches(out, stats)
		return nil
	})
}

func printBranches(w io.Writer, stats []models.BranchStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No branch activity indexed.")
		return
	}

	tw := newTable(w, "BRANCH", "PROJECT", "SESSIONS", "MESSAGES", "TOKENS", "LAST ACTIVE", "SESSION IDS")
	for _, b := range stats {
		ids := make([]string, len(b.SessionIDs))
		for i, id := range b.SessionIDs {
			ids[i] = shortID(id)
		}
		row(tw, orDash(b.Branch), b.Project, b.Sessions, b.Messages, tokens(b.Usage.Total()), ago(b.LastActivity), strings.Join(ids, ","))
	}
	tw.Flush()
}
