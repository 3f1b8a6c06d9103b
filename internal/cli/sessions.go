package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewSessionsCommand() *cobra.Command {
	var project string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List indexed sessions",
		Long:  `List indexed sessions, most recently active first.`,
		Example: `  agent-index sessions --limit 5
  agent-index sessions --project /home/dev/app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd.Context(), cmd.OutOrStdout(), project, limit)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Only sessions of this project path")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")

	return cmd
}

func NewSessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Show one session and its messages",
		Long:  `Show a session's attributes and its messages in transcript order. A unique id prefix is enough.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runSessions(ctx context.Context, out io.Writer, project string, limit int) error {
	return withReporter(func(r *report.Reporter) error {
		sessions, err := r.Sessions(ctx, project, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions indexed. Run 'agent-index sync' first.")
			return nil
		}
		tw := newTable(out, "SESSION", "TITLE", "PROJECT", "BRANCH", "MODEL", "MESSAGES", "STARTED", "LAST SEEN")
		for _, s := range sessions {
			row(tw, shortID(s.ID), orDash(oneLine(s.Display, 40)), s.Project, orDash(s.GitBranch), orDash(s.Model), s.MessageCount,
				s.StartedAt.Local().Format("2006-01-02 15:04"), ago(s.LastSeenAt))
		}
		return tw.Flush()
	})
}

func runSession(ctx context.Context, out io.Writer, id string) error {
	return withReporter(func(r *report.Reporter) error {
		s, err := r.Session(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, s)
		}
		printSession(out, s)
		return nil
	})
}

func printSession(w io.Writer, s *models.Session) {
	printTitle(w, "Session "+s.ID)
	if s.Display != "" {
		printField(w, "Title", s.Display)
	}
	printField(w, "Project", s.Project)
	printField(w, "Directory", orDash(s.CWD))
	printField(w, "Branch", orDash(s.GitBranch))
	printField(w, "Model", orDash(s.Model))
	printField(w, "Started", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	printField(w, "Last seen", s.LastSeenAt.Local().Format("2006-01-02 15:04:05"))
	printField(w, "Source", s.SourcePath)

	var usage models.TokenUsage
	for _, m := range s.Messages {
		usage.Add(m.Usage)
	}
	printField(w, "Tokens", usageSummary(usage))

	for _, m := range s.Messages {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(fmt.Sprintf("[%d] %s", m.Seq, m.Role)), labelStyle.Render(m.Timestamp.Local().Format("15:04:05")))
		fmt.Fprintln(w, m.Content)
	}
}
