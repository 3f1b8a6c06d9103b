package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/report"
)

const sessionLimit = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
)

// Browser is an interactive session browser over the index.
type Browser struct {
	reporter *report.Reporter
	dbPath   string
}

func NewBrowser(r *report.Reporter, dbPath string) *Browser {
	return &Browser{reporter: r, dbPath: dbPath}
}

func (b *Browser) Run(ctx context.Context) error {
	m := newModel(ctx, b.reporter, b.dbPath)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

type sessionItem struct {
	session models.Session
}

func (i sessionItem) FilterValue() string {
	return i.session.Project + " " + i.session.GitBranch + " " + i.session.ID + " " + i.session.Display
}

func (i sessionItem) Title() string {
	if i.session.Display != "" {
		return strings.Join(strings.Fields(i.session.Display), " ")
	}
	return i.session.Project
}

func (i sessionItem) Description() string {
	desc := fmt.Sprintf("%s | %d msgs | %s", shortID(i.session.ID), i.session.MessageCount, i.session.LastSeenAt.Local().Format("2006-01-02 15:04"))
	if i.session.GitBranch != "" {
		desc = i.session.GitBranch + " | " + desc
	}
	if i.session.Display != "" {
		desc = i.session.Project + " | " + desc
	}
	return desc
}

type resultItem struct {
	result models.SearchResult
}

func (i resultItem) FilterValue() string {
	return i.result.Snippet
}

func (i resultItem) Title() string {
	return strings.Join(strings.Fields(i.result.Snippet), " ")
}

func (i resultItem) Description() string {
	return fmt.Sprintf("%s | %s #%d | %s", i.result.Project, shortID(i.result.SessionID), i.result.Seq, i.result.Role)
}

type mode int

const (
	modeNormal mode = iota
	modeCommand
)

type sessionsLoadedMsg struct {
	sessions []models.Session
	err      error
}

type sessionLoadedMsg struct {
	session *models.Session
	err     error
}

type searchDoneMsg struct {
	query   string
	results []models.SearchResult
	err     error
}

// panelMsg replaces the content pane with a rendered report.
type panelMsg struct {
	content string
	err     error
}

type model struct {
	ctx      context.Context
	reporter *report.Reporter
	dbPath   string

	list         list.Model
	viewport     viewport.Model
	commandInput textinput.Model

	selected *models.Session
	width    int
	height   int
	ready    bool
	err      error
	mode     mode
	status   string
}

func newModel(ctx context.Context, r *report.Reporter, dbPath string) model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Sessions"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	vp := viewport.New(0, 0)
	vp.SetContent("Select a session to view")

	cmdInput := textinput.New()
	cmdInput.Prompt = ":"
	cmdInput.CharLimit = 256
	cmdInput.Width = 50

	return model{
		ctx:          ctx,
		reporter:     r,
		dbPath:       dbPath,
		list:         l,
		viewport:     vp,
		commandInput: cmdInput,
	}
}

func (m model) Init() tea.Cmd {
	return m.loadSessions()
}

func (m model) loadSessions() tea.Cmd {
	return func() tea.Msg {
		sessions, err := m.reporter.Sessions(m.ctx, "", sessionLimit)
		return sessionsLoadedMsg{sessions: sessions, err: err}
	}
}

func (m model) loadSession(id string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.reporter.Session(m.ctx, id)
		return sessionLoadedMsg{session: s, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		listWidth := m.width / 3
		m.list.SetSize(listWidth, m.height-3)

		m.viewport.Width = m.width - listWidth - 4
		m.viewport.Height = m.height - 5

		m.commandInput.Width = m.width - 4

	case sessionsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		items := make([]list.Item, len(msg.sessions))
		for i, s := range msg.sessions {
			items[i] = sessionItem{session: s}
		}
		m.list.Title = "Sessions"
		cmds = append(cmds, m.list.SetItems(items))
		m.status = fmt.Sprintf("%d sessions", len(items))

	case sessionLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Load failed: %v", msg.err)
			break
		}
		m.selected = msg.session
		m.viewport.SetContent(renderSession(msg.session))
		m.viewport.GotoTop()

	case searchDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Search failed: %v", msg.err)
			break
		}
		items := make([]list.Item, len(msg.results))
		for i, r := range msg.results {
			items[i] = resultItem{result: r}
		}
		m.list.Title = "Results: " + msg.query
		cmds = append(cmds, m.list.SetItems(items))
		m.status = fmt.Sprintf("Found %d results", len(items))

	case panelMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			break
		}
		m.viewport.SetContent(msg.content)
		m.viewport.GotoTop()

	case tea.KeyMsg:
		switch m.mode {
		case modeNormal:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit

			case ":":
				m.mode = modeCommand
				m.commandInput.SetValue("")
				cmd = m.commandInput.Focus()
				return m, cmd

			case "enter":
				switch item := m.list.SelectedItem().(type) {
				case sessionItem:
					return m, m.loadSession(item.session.ID)
				case resultItem:
					return m, m.loadSession(item.result.SessionID)
				}

			case "?":
				m.viewport.SetContent(helpText)
				m.viewport.GotoTop()
				return m, nil
			}

		case modeCommand:
			switch msg.String() {
			case "enter":
				cmd = m.execute(m.commandInput.Value())
				m.mode = modeNormal
				m.commandInput.Blur()
				m.commandInput.SetValue("")
				return m, cmd

			case "esc":
				m.mode = modeNormal
				m.commandInput.Blur()
				m.commandInput.SetValue("")
				m.status = ""
				return m, nil
			}
		}
	}

	switch m.mode {
	case modeNormal:
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)

	case modeCommand:
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n", m.err)
	}

	listView := paneStyle.
		Width(m.width/3 - 2).
		Height(m.height - 3).
		Render(m.list.View())

	contentView := paneStyle.
		Width(m.width - m.width/3 - 2).
		Height(m.height - 3).
		Render(m.viewport.View())

	var bottomBar string
	switch {
	case m.mode == modeCommand:
		bottomBar = m.commandInput.View()
	case m.status != "":
		bottomBar = helpStyle.Render("  " + m.status)
	default:
		bottomBar = helpStyle.Render("  j/k: navigate • enter: open • /: filter • :: command • ?: help • q: quit")
	}

	dbInfo := "DB: " + m.dbPath
	if m.dbPath == "" {
		dbInfo = "DB: default"
	}

	topBar := lipgloss.JoinHorizontal(
		lipgloss.Left,
		titleStyle.Render("Agent Index"),
		helpStyle.Render("  "+dbInfo),
	)

	return topBar + "\n" +
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			listView,
			contentView,
		) + "\n" + bottomBar
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
