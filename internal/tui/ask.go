package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// ConversationEntry holds one question and the latest record for it
type ConversationEntry struct {
	Question string
	Kind     store.Kind
	Record   pipeline.Record
	Started  time.Time
	Done     bool
	Received bool
}

// AskModel is the question interface. Answers stream in record by record.
type AskModel struct {
	deps      Deps
	width     int
	height    int
	textArea  textarea.Model
	spinner   spinner.Model
	kind      store.Kind
	loading   bool
	showQuery bool
	entries   []ConversationEntry

	// Active stream
	streamID int
	records  chan pipeline.Record
	cancel   context.CancelFunc
}

// recordMsg carries one record from the active stream
type recordMsg struct {
	id     int
	record pipeline.Record
}

// answerDoneMsg indicates the stream finished
type answerDoneMsg struct {
	id int
}

// kindChangedMsg indicates the target store changed
type kindChangedMsg struct {
	kind store.Kind
}

// NewAskModel creates a new ask model
func NewAskModel(deps Deps, kind store.Kind) *AskModel {
	ta := textarea.New()
	ta.Placeholder = "Ask a question about your data..."
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.CharLimit = 0
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(ColorOrange)
	ta.BlurredStyle.Base = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(ColorGray)
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorOrange)

	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	return &AskModel{
		deps:      deps,
		textArea:  ta,
		spinner:   s,
		kind:      kind,
		showQuery: true,
	}
}

// Init initializes the ask model
func (m *AskModel) Init() tea.Cmd {
	return textarea.Blink
}

// SetInitialQuestion places question in the editor
func (m *AskModel) SetInitialQuestion(question string) {
	m.textArea.SetValue(question)
	m.textArea.CursorEnd()
}

func (m *AskModel) resize(width, height int) {
	m.width = width
	m.height = height
	editorWidth := width - 10
	if editorWidth < 40 {
		editorWidth = 40
	}
	m.textArea.SetWidth(editorWidth)
}

// Update handles messages for the ask model
func (m *AskModel) Update(msg tea.Msg) (*AskModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case recordMsg:
		if msg.id != m.streamID || !m.loading || len(m.entries) == 0 {
			return m, nil
		}
		last := &m.entries[len(m.entries)-1]
		last.Record = msg.record
		last.Received = true
		return m, waitForRecord(m.streamID, m.records)

	case answerDoneMsg:
		if msg.id != m.streamID {
			return m, nil
		}
		m.finishStream()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))):
			m.cancelStream()
			return m, tea.Quit

		case key.Matches(msg, key.NewBinding(key.WithKeys("esc", "f1"))):
			if m.loading {
				m.cancelStream()
				m.finishStream()
				return m, nil
			}
			return m, func() tea.Msg { return goToMenuMsg{} }

		case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
			if m.loading {
				return m, nil
			}
			m.kind = m.nextKind()
			kind := m.kind
			GlobalAppState.Store = kind
			return m, func() tea.Msg { return kindChangedMsg{kind: kind} }

		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+g"))):
			m.showQuery = !m.showQuery
			return m, nil

		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+l"))):
			if !m.loading {
				m.entries = nil
			}
			return m, nil

		case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
			if m.loading {
				return m, nil
			}
			question := strings.TrimSpace(m.textArea.Value())
			if question == "" {
				return m, nil
			}
			m.textArea.Reset()
			return m, m.ask(question)
		}

		if m.loading {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textArea, cmd = m.textArea.Update(msg)
	return m, cmd
}

// nextKind cycles through the configured store kinds
func (m *AskModel) nextKind() store.Kind {
	kinds := m.deps.Stores.Kinds()
	if len(kinds) == 0 {
		return m.kind
	}
	for i, k := range kinds {
		if k == m.kind {
			return kinds[(i+1)%len(kinds)]
		}
	}
	return kinds[0]
}

// ask starts streaming records for question on a background goroutine
func (m *AskModel) ask(question string) tea.Cmd {
	m.cancelStream()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.streamID++
	m.records = make(chan pipeline.Record)
	m.loading = true
	m.entries = append(m.entries, ConversationEntry{
		Question: question,
		Kind:     m.kind,
		Started:  time.Now(),
	})
	GlobalAppState.Status = "Thinking"

	records := m.records
	processor := m.deps.Processor
	kind := m.kind
	go func() {
		defer close(records)
		for rec := range processor.Process(ctx, question, kind) {
			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tea.Batch(m.spinner.Tick, waitForRecord(m.streamID, records))
}

func waitForRecord(id int, records <-chan pipeline.Record) tea.Cmd {
	return func() tea.Msg {
		rec, ok := <-records
		if !ok {
			return answerDoneMsg{id: id}
		}
		return recordMsg{id: id, record: rec}
	}
}

// finishStream marks the last entry done and saves it to history
func (m *AskModel) finishStream() {
	if !m.loading {
		return
	}
	m.loading = false
	GlobalAppState.Status = "Ready"
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if len(m.entries) == 0 {
		return
	}

	last := &m.entries[len(m.entries)-1]
	last.Done = true
	if !last.Received {
		return
	}
	GlobalAppState.QuestionCount++
	if m.deps.History != nil {
		entry := history.FromRecord(last.Question, last.Kind, last.Record, last.Started)
		if err := m.deps.History.Add(entry); err != nil {
			m.deps.Logger.Warn("tui: failed to save history", "error", err)
		}
	}
}

// cancelStream stops the active stream, if any
func (m *AskModel) cancelStream() {
	if m.cancel != nil {
		m.cancel()
	}
}

// View renders the ask screen
func (m *AskModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	header := RenderHeader("Ask")
	content := m.renderContent()
	var helpText string
	if m.loading {
		helpText = "esc: cancel • ctrl+g: toggle query • ctrl+c: quit"
	} else {
		helpText = "enter: ask • alt+enter: newline • tab: switch store • ctrl+g: toggle query • ctrl+l: clear • esc: menu"
	}
	footer := RenderHelpFooter(helpText, m.width)

	return LayoutWithHeaderFooter(header, content, footer, m.width, m.height)
}

func (m *AskModel) renderContent() string {
	var sections []string

	// Conversation area takes most of the screen
	conversationHeight := m.height - 18
	if conversationHeight < 8 {
		conversationHeight = 8
	}

	if len(m.entries) > 0 {
		sections = append(sections, m.renderConversation(conversationHeight))
	} else {
		sections = append(sections, m.renderWelcome(conversationHeight))
	}

	if m.loading {
		sections = append(sections, lipgloss.NewStyle().
			Width(m.width-10).
			Align(lipgloss.Center).
			Render(m.spinner.View()+" Working on it..."))
	}

	sections = append(sections, "")
	kindLabel := lipgloss.NewStyle().Foreground(ColorBlue).Render("[" + string(m.kind) + "]")
	sections = append(sections, PromptStyle.Render("Ask your data ")+kindLabel)
	sections = append(sections, m.textArea.View())

	return lipgloss.JoinVertical(lipgloss.Center, sections...)
}

// renderConversation renders the conversation, keeping the most recent
// lines when it overflows height
func (m *AskModel) renderConversation(height int) string {
	width := min(90, m.width-10)
	if width < 20 {
		width = 20
	}

	questionLabel := lipgloss.NewStyle().Foreground(ColorGray)
	questionStyle := lipgloss.NewStyle().Foreground(ColorOrange).Bold(true)
	queryBox := BoxStyle.
		BorderForeground(ColorCyan).
		Width(width).
		Padding(0, 1)
	answerStyle := lipgloss.NewStyle().Foreground(ColorWhite).Width(width)
	pendingStyle := lipgloss.NewStyle().Foreground(ColorGray).Italic(true)

	var lines []string
	for i, entry := range m.entries {
		if i > 0 {
			lines = append(lines, lipgloss.NewStyle().
				Foreground(ColorDarkGray).
				Render(strings.Repeat("─", min(60, width))))
		}

		lines = append(lines, questionLabel.Render("You: ")+questionStyle.Render(entry.Question))

		if !entry.Received {
			if entry.Done {
				lines = append(lines, pendingStyle.Render("cancelled"))
			} else {
				lines = append(lines, pendingStyle.Render("waiting for the first answer..."))
			}
			lines = append(lines, "")
			continue
		}

		rec := entry.Record
		lines = append(lines, labelStyle(rec.Label).Render(rec.Label))
		if m.showQuery && rec.Label == pipeline.LabelQueryNeeded && rec.Query != "" {
			lines = append(lines, queryBox.Render(QueryStyle.Render(rec.Query)))
		}
		answer := rec.Answer
		if answer == "" && entry.Done {
			answer = "(no answer)"
		}
		lines = append(lines, answerStyle.Render(answer))
		lines = append(lines, "")
	}

	all := strings.Split(strings.Join(lines, "\n"), "\n")
	if len(all) > height {
		all = all[len(all)-height:]
	}

	return lipgloss.NewStyle().
		Width(m.width - 10).
		Align(lipgloss.Center).
		Render(strings.Join(all, "\n"))
}

func (m *AskModel) renderWelcome(height int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(ColorOrange).
		Bold(true)

	subtitleStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	examplesTitle := lipgloss.NewStyle().
		Foreground(ColorOrange).
		Bold(true).
		Render("Example questions:")

	examples := []string{
		"• \"How many movies are in the database?\"",
		"• \"Show me the ten most recent orders\"",
		"• \"Which customers spent the most last year?\"",
		"• \"What tables do you know about?\"",
	}

	examplesContent := lipgloss.JoinVertical(lipgloss.Left,
		examplesTitle,
		"",
		lipgloss.NewStyle().Foreground(ColorGray).Render(strings.Join(examples, "\n")),
	)

	examplesBox := BoxStyle.
		BorderForeground(ColorGray).
		Width(56).
		Padding(1, 2)

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		titleStyle.Render("Ask your data anything"),
		"",
		subtitleStyle.Render("Questions are answered from the "+string(m.kind)+" store"),
		"",
		examplesBox.Render(examplesContent),
	)

	return lipgloss.NewStyle().
		Width(m.width - 10).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}
