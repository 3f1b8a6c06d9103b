package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/pricing"
	"github.com/jasperwreed/agent-index/internal/report"
	"github.com/jasperwreed/agent-index/internal/search"
)

const helpText = `
Commands (press : to enter command mode):

  :search <query> - Full-text search over messages
  :sessions       - Back to the session list
  :stats          - Token usage and cost
  :tools          - Tool usage
  :todos          - Open todos
  :help           - Show this help

Keys:
  j/k or ↑/↓     - Navigate list
  enter          - Open session
  /              - Filter list
  :              - Command mode
  ?              - Show help
  q              - Quit
`

// execute runs a command-mode line and returns the command producing its result.
func (m *model) execute(line string) tea.Cmd {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command, args := parts[0], parts[1:]
	switch command {
	case "search", "s":
		if len(args) == 0 {
			m.status = "Usage: :search <query>"
			return nil
		}
		query := strings.Join(args, " ")
		m.status = "Searching for: " + query
		return func() tea.Msg {
			results, err := m.reporter.Search(m.ctx, query, 100, search.Filters{})
			return searchDoneMsg{query: query, results: results, err: err}
		}

	case "sessions":
		return m.loadSessions()

	case "stats":
		return func() tea.Msg {
			stats, err := m.reporter.Stats(m.ctx, report.StatsOptions{SessionLimit: report.DefaultSessionLimit})
			if err != nil {
				return panelMsg{err: err}
			}
			return panelMsg{content: renderStats(stats)}
		}

	case "tools":
		return func() tea.Msg {
			stats, err := m.reporter.Tools(m.ctx)
			if err != nil {
				return panelMsg{err: err}
			}
			return panelMsg{content: renderTools(stats)}
		}

	case "todos":
		return func() tea.Msg {
			todos, err := m.reporter.Todos(m.ctx, "", true)
			if err != nil {
				return panelMsg{err: err}
			}
			return panelMsg{content: renderTodos(todos)}
		}

	case "help", "h":
		return func() tea.Msg { return panelMsg{content: helpText} }

	case "quit", "q":
		return tea.Quit

	default:
		m.status = fmt.Sprintf("Unknown command: %s", command)
		return nil
	}
}

func renderSession(s *models.Session) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render(s.Project))
	content.WriteString("\n\n")
	fmt.Fprintf(&content, "Session: %s\n", s.ID)
	if s.GitBranch != "" {
		fmt.Fprintf(&content, "Branch: %s\n", s.GitBranch)
	}
	if s.Model != "" {
		fmt.Fprintf(&content, "Model: %s\n", s.Model)
	}
	fmt.Fprintf(&content, "Started: %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	content.WriteString("\n" + strings.Repeat("─", 40) + "\n\n")

	for _, msg := range s.Messages {
		if msg.Role == "user" {
			content.WriteString(userStyle.Render("User:"))
		} else {
			content.WriteString(assistantStyle.Render("Assistant:"))
		}
		content.WriteString("\n")
		content.WriteString(msg.Content)
		content.WriteString("\n\n")
	}
	return content.String()
}

func renderStats(stats *models.UsageStats) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("Usage"))
	content.WriteString("\n\n")
	fmt.Fprintf(&content, "Sessions: %d\n", stats.Sessions)
	fmt.Fprintf(&content, "Messages: %d\n", stats.Messages)
	fmt.Fprintf(&content, "Tool calls: %d\n", stats.ToolCalls)
	fmt.Fprintf(&content, "Tokens: %d\n", stats.Usage.Total())
	fmt.Fprintf(&content, "Estimated cost: %s\n", pricing.FormatCost(stats.Cost))

	if len(stats.ByModel) > 0 {
		content.WriteString("\nBy model:\n")
		for _, m := range stats.ByModel {
			fmt.Fprintf(&content, "  %s: %d tokens, %s\n", m.Model, m.Usage.Total(), pricing.FormatCost(m.Cost))
		}
	}
	return content.String()
}

func renderTools(stats []models.ToolStat) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("Tools"))
	content.WriteString("\n\n")
	if len(stats) == 0 {
		content.WriteString("No tool calls indexed.\n")
	}
	for _, s := range stats {
		fmt.Fprintf(&content, "  %s: %d calls, %d errors\n", s.Name, s.Calls, s.Errors)
	}
	return content.String()
}

func renderTodos(todos []models.Todo) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("Open todos"))
	content.WriteString("\n\n")
	if len(todos) == 0 {
		content.WriteString("Nothing pending.\n")
	}
	for _, t := range todos {
		fmt.Fprintf(&content, "  [%s] %s (%s)\n", t.Status, t.Content, t.Project)
	}
	return content.String()
}
