package tui

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Screen represents the current screen being displayed
type Screen int

const (
	ScreenMenu Screen = iota
	ScreenAsk
	ScreenTables
	ScreenHistory
)

// Processor resolves questions into a stream of answer records
type Processor interface {
	Process(ctx context.Context, question string, kind store.Kind) iter.Seq[pipeline.Record]
}

// Deps holds everything the interface talks to
type Deps struct {
	Processor Processor
	Stores    store.Registry
	History   *history.Store
	Kind      store.Kind
	Logger    *slog.Logger
}

// AppModel is the main application model
type AppModel struct {
	deps           Deps
	screen         Screen
	width          int
	height         int
	menu           *MenuModel
	ask            *AskModel
	tables         *TablesModel
	history        *HistoryModel
	spinner        spinner.Model
	loading        bool
	loadingMessage string
}

// blinkTickMsg for status bar blinking
type blinkTickMsg time.Time

// goToMenuMsg indicates request to return to menu screen
type goToMenuMsg struct{}

// storeStatusMsg carries the result of the startup connection check
type storeStatusMsg struct {
	kind    store.Kind
	dialect string
	tables  int
	err     error
}

// NewAppModel creates a new application model
func NewAppModel(deps Deps) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorOrange)

	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Kind == "" {
		deps.Kind = store.Relational
	}
	GlobalAppState.Store = deps.Kind

	return &AppModel{
		deps:           deps,
		screen:         ScreenMenu,
		menu:           NewMenuModel(),
		spinner:        s,
		loading:        true,
		loadingMessage: "Connecting to " + string(deps.Kind) + " store...",
	}
}

// Init initializes the application
func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(
		m.menu.Init(),
		m.spinner.Tick,
		m.startBlinkTicker(),
		m.checkStore(m.deps.Kind),
	)
}

func (m *AppModel) startBlinkTicker() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return blinkTickMsg(t)
	})
}

// checkStore connects to the store for kind and counts its tables
func (m *AppModel) checkStore(kind store.Kind) tea.Cmd {
	stores := m.deps.Stores
	return func() tea.Msg {
		s, err := stores.Get(kind)
		if err != nil {
			return storeStatusMsg{kind: kind, err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.EnsureConnected(ctx); err != nil {
			return storeStatusMsg{kind: kind, dialect: s.Dialect(), err: err}
		}
		tables, err := s.ListTables(ctx)
		return storeStatusMsg{kind: kind, dialect: s.Dialect(), tables: len(tables), err: err}
	}
}

// Update handles all messages for the application
func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Propagate to all sub-models
		m.menu.width = msg.Width
		m.menu.height = msg.Height
		if m.ask != nil {
			m.ask.resize(msg.Width, msg.Height)
		}
		if m.tables != nil {
			m.tables.width = msg.Width
			m.tables.height = msg.Height
		}
		if m.history != nil {
			m.history.width = msg.Width
			m.history.height = msg.Height
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.ask != nil && m.screen == ScreenAsk {
			m.ask, cmd = m.ask.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case blinkTickMsg:
		GlobalAppState.BlinkOn = !GlobalAppState.BlinkOn
		return m, m.startBlinkTicker()

	case storeStatusMsg:
		m.loading = false
		GlobalAppState.Store = msg.kind
		GlobalAppState.Dialect = msg.dialect
		if msg.err != nil {
			m.deps.Logger.Warn("tui: store unavailable", "store", msg.kind, "error", msg.err)
			GlobalAppState.IsConnected = false
			GlobalAppState.Status = "Offline"
			return m, nil
		}
		GlobalAppState.IsConnected = true
		GlobalAppState.TablesCount = msg.tables
		GlobalAppState.Status = "Connected"
		return m, nil

	case kindChangedMsg:
		return m, m.checkStore(msg.kind)

	case menuActionMsg:
		switch msg.action {
		case MenuAsk:
			return m, m.openAsk("")

		case MenuTables:
			m.screen = ScreenTables
			m.tables = NewTablesModel(m.deps.Stores, GlobalAppState.Store)
			m.tables.width = m.width
			m.tables.height = m.height
			return m, m.tables.Init()

		case MenuHistory:
			m.screen = ScreenHistory
			m.history = NewHistoryModel(m.deps.History, m.deps.Logger)
			m.history.width = m.width
			m.history.height = m.height
			return m, m.history.Init()

		case MenuQuit:
			return m, tea.Quit
		}

	case rerunQuestionMsg:
		// User wants to ask a question from history again
		if _, err := m.deps.Stores.Get(msg.kind); err == nil {
			GlobalAppState.Store = msg.kind
		}
		return m, m.openAsk(msg.question)

	case goToMenuMsg:
		// Return to menu screen
		m.screen = ScreenMenu
		return m, nil
	}

	// Route to current screen
	switch m.screen {
	case ScreenMenu:
		var cmd tea.Cmd
		m.menu, cmd = m.menu.Update(msg)
		cmds = append(cmds, cmd)

	case ScreenAsk:
		if m.ask != nil {
			var cmd tea.Cmd
			m.ask, cmd = m.ask.Update(msg)
			cmds = append(cmds, cmd)
		}

	case ScreenTables:
		if m.tables != nil {
			var cmd tea.Cmd
			m.tables, cmd = m.tables.Update(msg)
			cmds = append(cmds, cmd)
		}

	case ScreenHistory:
		if m.history != nil {
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// openAsk switches to the ask screen, keeping the conversation if one
// exists. A non-empty question is placed in the editor.
func (m *AppModel) openAsk(question string) tea.Cmd {
	m.screen = ScreenAsk
	if m.ask == nil {
		m.ask = NewAskModel(m.deps, GlobalAppState.Store)
	} else {
		m.ask.kind = GlobalAppState.Store
	}
	m.ask.resize(m.width, m.height)
	if question != "" {
		m.ask.SetInitialQuestion(question)
	}
	return m.ask.Init()
}

// View renders the application
func (m *AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	if m.loading {
		return m.renderLoading()
	}

	switch m.screen {
	case ScreenAsk:
		if m.ask != nil {
			return m.ask.View()
		}
	case ScreenTables:
		if m.tables != nil {
			return m.tables.View()
		}
	case ScreenHistory:
		if m.history != nil {
			return m.history.View()
		}
	}
	return m.menu.View()
}

func (m *AppModel) renderLoading() string {
	header := RenderHeader("Loading")

	loadingStyle := lipgloss.NewStyle().
		Foreground(ColorOrange).
		Align(lipgloss.Center)

	content := loadingStyle.Render(m.spinner.View() + " " + m.loadingMessage)

	helpText := "Please wait..."
	footer := RenderHelpFooter(helpText, m.width)

	return LayoutWithHeaderFooter(header, content, footer, m.width, m.height)
}

// RunApp runs the main TUI application
func RunApp(deps Deps) error {
	app := NewAppModel(deps)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	if app.ask != nil {
		app.ask.cancelStream()
	}
	return err
}
