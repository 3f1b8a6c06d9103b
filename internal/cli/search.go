package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/report"
	"github.com/jasperwreed/agent-index/internal/search"
)

func NewSearchCommand() *cobra.Command {
	var limit int
	var filters search.Filters

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over messages",
		Long:  `Search every indexed message. All terms must match; results are ranked by relevance, newest first on ties.`,
		Example: `  # Find where a bug was discussed
  agent-index search "auth bug"

  # Only assistant messages in one project
  agent-index search migration --project backend --role assistant --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewValidator().ValidateLimit(limit, search.MaxLimit); err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), limit, filters)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().StringVar(&filters.Project, "project", "", "Only results from projects containing this text")
	cmd.Flags().StringVar(&filters.Role, "role", "", "Only results with this role (user, assistant, system)")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query string, limit int, filters search.Filters) error {
	return withReporter(func(r *report.Reporter) error {
		results, err := r.Search(ctx, query, limit, filters)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if jsonOutput {
			return printJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}

		fmt.Fprintf(out, "Found %d result(s) for '%s':\n\n", len(results), query)
		for i, result := range results {
			fmt.Fprintf(out, "%d. %s #%d [%s]", i+1, shortID(result.SessionID), result.Seq, result.Role)
			if result.Project != "" {
				fmt.Fprintf(out, " | Project: %s", result.Project)
			}
			if !result.Timestamp.IsZero() {
				fmt.Fprintf(out, " | %s", result.Timestamp.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "\n   %s\n\n", oneLine(result.Snippet, 200))
		}
		return nil
	})
}
