package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/pricing"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewStatsCommand() *cobra.Command {
	var today bool
	var since string
	var sessions int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage and estimated cost",
		Long:  `Display token usage and estimated API cost in total and per day, session and model.`,
		Example: `  # All-time usage
  agent-index stats

  # Since local midnight
  agent-index stats --today

  # The last week
  agent-index stats --since 7d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := NewValidator()
			start, err := v.ParseSince(since)
			if err != nil {
				return err
			}
			if err := v.ValidateLimit(sessions, 1000); err != nil {
				return err
			}
			return runStats(cmd.Context(), cmd.OutOrStdout(), report.StatsOptions{Today: today, Since: start, SessionLimit: sessions})
		},
	}

	cmd.Flags().BoolVar(&today, "today", false, "Only usage since local midnight")
	cmd.Flags().StringVar(&since, "since", "", "Only usage since a date (YYYY-MM-DD) or relative value (7d, 12h)")
	cmd.Flags().IntVar(&sessions, "sessions", report.DefaultSessionLimit, "Number of recent sessions to break down")

	return cmd
}

func runStats(ctx context.Context, out io.Writer, opts report.StatsOptions) error {
	return withReporter(func(r *report.Reporter) error {
		stats, err := r.Stats(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}
		if jsonOutput {
			return printJSON(out, stats)
		}
		printStats(out, stats)
		return nil
	})
}

func printStats(w io.Writer, stats *models.UsageStats) {
	title := "Usage (all time)"
	if stats.Since != nil {
		title = fmt.Sprintf("Usage since %s", stats.Since.Format("2006-01-02 15:04"))
	}
	printTitle(w, title)
	printField(w, "Sessions", stats.Sessions)
	printField(w, "Messages", stats.Messages)
	printField(w, "Tool calls", stats.ToolCalls)
	printField(w, "Tokens", usageSummary(stats.Usage))
	printField(w, "Estimated cost", pricing.FormatCost(stats.Cost))

	if len(stats.ByDay) > 0 {
		fmt.Fprintln(w)
		printTitle(w, "By day")
		tw := newTable(w, "DAY", "SESSIONS", "MESSAGES", "INPUT", "OUTPUT", "COST")
		for _, d := range stats.ByDay {
			row(tw, d.Day, d.Sessions, d.Messages, tokens(d.Usage.InputTokens), tokens(d.Usage.OutputTokens), pricing.FormatCost(d.Cost))
		}
		tw.Flush()
	}

	if len(stats.BySession) > 0 {
		fmt.Fprintln(w)
		printTitle(w, "Recent sessions")
		tw := newTable(w, "SESSION", "PROJECT", "MESSAGES", "TOKENS", "COST", "LAST SEEN")
		for _, s := range stats.BySession {
			row(tw, shortID(s.SessionID), s.Project, s.Messages, tokens(s.Usage.Total()), pricing.FormatCost(s.Cost), ago(s.LastSeenAt))
		}
		tw.Flush()
	}

	if len(stats.ByModel) > 0 {
		fmt.Fprintln(w)
		printTitle(w, "By model")
		tw := newTable(w, "MODEL", "MESSAGES", "INPUT", "OUTPUT", "CACHE", "COST")
		for _, m := range stats.ByModel {
			row(tw, orDash(m.Model), m.Messages, tokens(m.Usage.InputTokens), tokens(m.Usage.OutputTokens),
				tokens(m.Usage.CacheCreationTokens+m.Usage.CacheReadTokens), pricing.FormatCost(m.Cost))
		}
		tw.Flush()
	}
}
