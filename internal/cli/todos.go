package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

func NewTodosCommand() *cobra.Command {
	var pending bool
	var project string

	cmd := &cobra.Command{
		Use:   "todos",
		Short: "List todos tracked by the agent",
		Example: `  # Open todos only
  agent-index todos --pending

  # Every todo of one project
  agent-index todos --project /home/dev/app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodos(cmd.Context(), cmd.OutOrStdout(), project, pending)
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "Only pending and in-progress todos")
	cmd.Flags().StringVar(&project, "project", "", "Only todos of this project path")

	return cmd
}

func runTodos(ctx context.Context, out io.Writer, project string, pending bool) error {
	return withReporter(func(r *report.Reporter) error {
		todos, err := r.Todos(ctx, project, pending)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, todos)
		}
		printTodos(out, todos)
		return nil
	})
}

func printTodos(w io.Writer, todos []models.Todo) {
	if len(todos) == 0 {
		fmt.Fprintln(w, "No todos found.")
		return
	}

	tw := newTable(w, "STATUS", "PROJECT", "TODO", "UPDATED")
	for _, t := range todos {
		status := t.Status
		switch t.Status {
		case models.TodoCompleted:
			status = goodStyle.Render(status)
		case models.TodoInProgress:
			status = warnStyle.Render(status)
		}
		row(tw, status, t.Project, oneLine(t.Content, 80), ago(t.UpdatedAt))
	}
	tw.Flush()
}
