package cli

import (
	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/report"
	"github.com/jasperwreed/agent-index/internal/tui"
)

func NewBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse sessions in a TUI",
		Long:  `Open an interactive terminal UI to browse sessions and search messages.`,
		Example: `  # Browse the default index
  agent-index browse

  # Browse another index
  agent-index browse --db other.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReporter(func(r *report.Reporter) error {
				return tui.NewBrowser(r, cfg.Paths.Database).Run(cmd.Context())
			})
		},
	}
}
