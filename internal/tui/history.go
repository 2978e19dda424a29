package tui

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

const historyRows = 12

var historyKeys = struct {
	Up, Down, Rerun, Delete, Back, Quit key.Binding
}{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Rerun:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "ask again")),
	Delete: key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

// HistoryModel lists earlier questions, newest first
type HistoryModel struct {
	width   int
	height  int
	entries []history.Entry
	cursor  int
	store   *history.Store
	log     *slog.Logger
	err     error
}

// rerunQuestionMsg asks the app to open the ask screen with a question
type rerunQuestionMsg struct {
	question string
	kind     store.Kind
}

func NewHistoryModel(h *history.Store, log *slog.Logger) *HistoryModel {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &HistoryModel{store: h, log: log}
	if h != nil {
		m.entries, m.err = h.List()
	}
	return m
}

func (m *HistoryModel) Init() tea.Cmd {
	return nil
}

func (m *HistoryModel) Update(msg tea.Msg) (*HistoryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, historyKeys.Back):
			return m, func() tea.Msg { return goToMenuMsg{} }
		case key.Matches(msg, historyKeys.Quit):
			return m, tea.Quit
		case len(m.entries) == 0:
		case key.Matches(msg, historyKeys.Up):
			m.cursor = (m.cursor + len(m.entries) - 1) % len(m.entries)
		case key.Matches(msg, historyKeys.Down):
			m.cursor = (m.cursor + 1) % len(m.entries)
		case key.Matches(msg, historyKeys.Rerun):
			e := m.entries[m.cursor]
			kind, err := store.ParseKind(e.Store)
			if err != nil {
				kind = store.Relational
			}
			return m, func() tea.Msg { return rerunQuestionMsg{question: e.Question, kind: kind} }
		case key.Matches(msg, historyKeys.Delete):
			m.remove(m.cursor)
		}
	}
	return m, nil
}

func (m *HistoryModel) remove(i int) {
	if m.store == nil {
		return
	}
	if _, err := m.store.Remove(m.entries[i]); err != nil {
		m.err = err
		m.log.Warn("tui: failed to delete history entry", "error", err)
		return
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	m.cursor = min(m.cursor, max(len(m.entries)-1, 0))
}

func (m *HistoryModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	k := historyKeys
	help := fmt.Sprintf("%s • %s • %s • %s • %s",
		helpOf(k.Up, k.Down), helpOf(k.Rerun), helpOf(k.Delete), helpOf(k.Back), helpOf(k.Quit))
	return LayoutWithHeaderFooter(
		RenderHeader("Question History"),
		m.renderContent(),
		RenderHelpFooter(help, m.width),
		m.width, m.height,
	)
}

// visibleRange is the window of entries shown, keeping the cursor in view
func (m *HistoryModel) visibleRange() (int, int) {
	start := max(m.cursor-historyRows+1, 0)
	return start, min(start+historyRows, len(m.entries))
}

func (m *HistoryModel) renderContent() string {
	if m.err != nil {
		return ErrorStyle.Render("Could not read history: " + m.err.Error())
	}
	if len(m.entries) == 0 {
		return InactiveStyle.Italic(true).Render("No questions asked yet")
	}

	const timeW, storeW = 12, 11
	questionW := max(min(m.width-timeW-storeW-16, 60), 20)
	rule := InactiveStyle.Render(repeatChar("─", timeW+questionW+storeW+8))

	lines := []string{
		TitleStyle.Render("  " + padRight("When", timeW) + "  " + padRight("Question", questionW) + "  " + "Store"),
		rule,
	}
	start, end := m.visibleRange()
	for i := start; i < end; i++ {
		e := m.entries[i]
		mark := lipgloss.NewStyle().Foreground(ColorGreen).Render("●")
		if !e.Success {
			mark = lipgloss.NewStyle().Foreground(ColorRed).Render("○")
		}
		q := ValueStyle
		cursor := " "
		if i == m.cursor {
			q, cursor = ActiveStyle, ActiveStyle.Render("▶")
		}
		lines = append(lines, cursor+mark+" "+
			LabelStyle.Render(padRight(e.Timestamp.Local().Format("01-02 15:04"), timeW))+"  "+
			q.Render(padRight(truncateStr(e.Question, questionW), questionW))+"  "+
			QueryStyle.Render(e.Store))
	}
	lines = append(lines, rule,
		InactiveStyle.Render(fmt.Sprintf("%d-%d of %d   ● answered  ○ failed", start+1, end, len(m.entries))),
		"",
		m.renderDetails(m.entries[m.cursor]),
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *HistoryModel) renderDetails(e history.Entry) string {
	parts := []string{labelStyle(e.Label).Render(e.Label)}
	if e.Query != "" {
		parts = append(parts, "", LabelStyle.Render("Query:"), QueryStyle.Render(e.Query))
	}
	parts = append(parts,
		"", LabelStyle.Render("Answer:"), ValueStyle.Render(truncateStr(e.Answer, 600)),
		"", LabelStyle.Render(fmt.Sprintf("Took %.0fms", e.DurationMS)),
	)
	box := BoxStyle.BorderForeground(ColorBlue).Width(max(min(80, m.width-10), 20))
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
