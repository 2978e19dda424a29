package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MenuItem identifies an entry of the main menu
type MenuItem int

const (
	MenuAsk MenuItem = iota
	MenuTables
	MenuHistory
	MenuQuit
)

type menuEntry struct {
	action MenuItem
	title  string
	hint   string
	// needsStore entries are unavailable while the store is offline
	needsStore bool
}

var menuEntries = []menuEntry{
	{MenuAsk, "Ask a Question", "Type a question in plain language and get an answer from your data", false},
	{MenuTables, "Browse Tables", "Inspect the tables or collections the assistant can query", true},
	{MenuHistory, "Question History", "Review, re-run or delete earlier questions", false},
	{MenuQuit, "Quit", "Leave kartoza-nl2sql", false},
}

type menuKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
}

var menuKeys = menuKeyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Choose: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "select")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
}

// MenuModel is the start screen
type MenuModel struct {
	cursor int
	width  int
	height int
}

// NewMenuModel returns a menu with the cursor on the first entry
func NewMenuModel() *MenuModel {
	return &MenuModel{}
}

func (m *MenuModel) Init() tea.Cmd {
	return nil
}

func (m *MenuModel) Update(msg tea.Msg) (*MenuModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, menuKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, menuKeys.Up):
			m.cursor = (m.cursor + len(menuEntries) - 1) % len(menuEntries)
		case key.Matches(msg, menuKeys.Down):
			m.cursor = (m.cursor + 1) % len(menuEntries)
		case key.Matches(msg, menuKeys.Choose):
			return m, m.choose(m.cursor)
		default:
			// 1-4 jump straight to an entry
			if s := msg.String(); len(s) == 1 && s[0] >= '1' && int(s[0]-'1') < len(menuEntries) {
				m.cursor = int(s[0] - '1')
				return m, m.choose(m.cursor)
			}
		}
	}
	return m, nil
}

func (m *MenuModel) choose(i int) tea.Cmd {
	entry := menuEntries[i]
	if entry.needsStore && !GlobalAppState.IsConnected {
		return nil
	}
	if entry.action == MenuQuit {
		return tea.Quit
	}
	return func() tea.Msg { return menuActionMsg{action: entry.action} }
}

func (m *MenuModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	help := fmt.Sprintf("%s • %s • 1-%d: jump • %s",
		helpOf(menuKeys.Up, menuKeys.Down), helpOf(menuKeys.Choose), len(menuEntries), helpOf(menuKeys.Quit))
	return LayoutWithHeaderFooter(
		RenderHeader("Main Menu"),
		m.renderEntries(),
		RenderHelpFooter(help, m.width),
		m.width, m.height,
	)
}

func (m *MenuModel) renderEntries() string {
	title := lipgloss.NewStyle().Foreground(ColorBlue).PaddingLeft(2)
	active := lipgloss.NewStyle().Foreground(ColorOrange).Bold(true).PaddingLeft(2)
	offline := lipgloss.NewStyle().Foreground(ColorGray).PaddingLeft(2)
	hint := lipgloss.NewStyle().Foreground(ColorGray).Italic(true).PaddingLeft(6)

	var lines []string
	for i, e := range menuEntries {
		marker := "  "
		if i == m.cursor {
			marker = "▶ "
		}
		label := fmt.Sprintf("%s%d  %s", marker, i+1, e.title)

		switch {
		case e.needsStore && !GlobalAppState.IsConnected:
			lines = append(lines, offline.Render(label+"  (store offline)"))
		case i == m.cursor:
			lines = append(lines, active.Render(label), hint.Render(e.hint))
		default:
			lines = append(lines, title.Render(label))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// SelectedAction returns the entry under the cursor
func (m *MenuModel) SelectedAction() MenuItem {
	return menuEntries[m.cursor].action
}

func helpOf(bindings ...key.Binding) string {
	keys := make([]string, 0, len(bindings))
	var desc string
	for _, b := range bindings {
		keys = append(keys, b.Help().Key)
		desc = b.Help().Desc
	}
	if len(bindings) > 1 {
		desc = "move"
	}
	return strings.Join(keys, " ") + ": " + desc
}

// menuActionMsg is sent when a menu entry is chosen
type menuActionMsg struct {
	action MenuItem
}
