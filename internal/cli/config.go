package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/config"
)

// configView is the resolved configuration together with the paths derived from it.
type configView struct {
	Source      string         `json:"source"`
	ProjectsDir string         `json:"projects_dir"`
	HistoryPath string         `json:"history_path"`
	TodosDir    string         `json:"todos_dir"`
	Config      *config.Config `json:"config"`
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Print the configuration in effect after the config file, environment variables
and global flags have been applied.`,
		Example: `  # Where is the index and which transcripts does it read?
  agent-index config

  # Full configuration including the pricing table
  agent-index config --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func runConfig(out io.Writer, c *config.Config) error {
	view := configView{
		Source:      c.Source,
		ProjectsDir: c.ProjectsDir(),
		HistoryPath: c.HistoryPath(),
		TodosDir:    c.TodosDir(),
		Config:      c,
	}
	if jsonOutput {
		return printJSON(out, view)
	}
	printConfig(out, view)
	return nil
}

func printConfig(w io.Writer, v configView) {
	source := v.Source
	if source == "" {
		source = "(built-in defaults)"
	}
	printTitle(w, "Configuration")
	printField(w, "Config file", source)
	printField(w, "Agent data", v.Config.Paths.ClaudeDir)
	printField(w, "Transcripts", v.ProjectsDir)
	printField(w, "Prompt history", v.HistoryPath)
	printField(w, "Todo lists", v.TodosDir)
	printField(w, "Database", v.Config.Paths.Database)
	printField(w, "Log", fmt.Sprintf("%s (%s)", v.Config.Log.Level, v.Config.Log.Format))
	printField(w, "Busy timeout", fmt.Sprintf("%dms", v.Config.Storage.BusyTimeoutMS))
	printField(w, "Subscription", fmt.Sprintf("%s, renews on day %d", v.Config.Billing.Subscription, v.Config.Billing.BillingDay))
	printField(w, "Error patterns", strings.Join(v.Config.Errors.Patterns, ", "))
	printField(w, "Max errors", v.Config.Errors.MaxResults)

	p := v.Config.Pricing
	if p == nil || len(p.Models) == 0 {
		return
	}
	fmt.Fprintln(w)
	printTitle(w, "Pricing ($ per million tokens)")
	tw := newTable(w, "MODEL", "INPUT", "OUTPUT")
	for _, m := range p.Models {
		row(tw, m.Name, m.InputPerMTok, m.OutputPerMTok)
	}
	tw.Flush()

	tiers := make([]string, 0, len(p.Subscriptions))
	for name := range p.Subscriptions {
		tiers = append(tiers, name)
	}
	sort.Strings(tiers)
	parts := make([]string, len(tiers))
	for i, name := range tiers {
		parts[i] = fmt.Sprintf("%s $%.0f", name, p.Subscriptions[name])
	}
	fmt.Fprintln(w)
	printField(w, "Subscriptions", strings.Join(parts, ", "))
}
