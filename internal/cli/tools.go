package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewToolsCommand() *cobra.Command {
	var toolName string
	var limit int

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show tool usage",
		Long:  `Show how often each tool was called, how often it failed and how long it took. With --tool, list that tool's recent calls.`,
		Example: `  # Usage of every tool
  agent-index tools

  # Recent Bash calls
  agent-index tools --tool Bash --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewValidator().ValidateLimit(limit, 1000); err != nil {
				return err
			}
			return runTools(cmd.Context(), cmd.OutOrStdout(), toolName, limit)
		},
	}

	cmd.Flags().StringVar(&toolName, "tool", "", "Show recent calls of one tool")
	cmd.Flags().IntVar(&limit, "limit", report.DefaultToolLimit, "Maximum number of calls to show with --tool")

	return cmd
}

func runTools(ctx context.Context, out io.Writer, toolName string, limit int) error {
	return withReporter(func(r *report.Reporter) error {
		if toolName == "" {
			stats, err := r.Tools(ctx)
			if err != nil {
				return fmt.Errorf("failed to get tool stats: %w", err)
			}
			if jsonOutput {
				return printJSON(out, stats)
			}
			printToolStats(out, stats)
			return nil
		}

		history, err := r.Tool(ctx, toolName, limit)
		if err != nil {
			return fmt.Errorf("failed to get tool history: %w", err)
		}
		if jsonOutput {
			return printJSON(out, history)
		}
		printToolHistory(out, history)
		return nil
	})
}

func printToolStats(w io.Writer, stats []models.ToolStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No tool calls indexed.")
		return
	}

	printTitle(w, "Tool usage")
	tw := newTable(w, "TOOL", "CALLS", "ERRORS", "AVG", "MAX", "LAST USED")
	for _, s := range stats {
		row(tw, s.Name, s.Calls, s.Errors, s.MeanDuration.Round(time.Millisecond), s.MaxDuration, ago(s.LastUsed))
	}
	tw.Flush()
}

func printToolHistory(w io.Writer, h *models.ToolHistory) {
	if h.Stat == nil {
		fmt.Fprintf(w, "No calls of %q indexed.\n", h.Name)
		if len(h.Suggestions) > 0 {
			fmt.Fprintf(w, "Did you mean: %s?\n", strings.Join(h.Suggestions, ", "))
		}
		return
	}

	printTitle(w, h.Name)
	printField(w, "Calls", h.Stat.Calls)
	printField(w, "Completed", h.Stat.Completed)
	printField(w, "Errors", h.Stat.Errors)
	printField(w, "Average duration", h.Stat.MeanDuration.Round(time.Millisecond))
	fmt.Fprintln(w)

	tw := newTable(w, "WHEN", "SESSION", "PROJECT", "DURATION", "STATUS", "INPUT")
	for _, c := range h.Calls {
		duration := "-"
		if c.Duration != nil {
			duration = c.Duration.String()
		}
		status := "open"
		switch {
		case c.IsError:
			status = warnStyle.Render("error")
		case c.Complete():
			status = goodStyle.Render("ok")
		}
		row(tw, ago(c.StartedAt), shortID(c.SessionID), c.Project, duration, status, oneLine(c.Input, 60))
	}
	tw.Flush()
}
