package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// TablesModel lists the tables or collections of a store with their columns
type TablesModel struct {
	width        int
	height       int
	stores       store.Registry
	kind         store.Kind
	loading      bool
	err          error
	tables       []string
	blocks       map[string]string
	selectedItem int
}

// tablesLoadedMsg carries the table list and schema blocks
type tablesLoadedMsg struct {
	kind   store.Kind
	tables []string
	blocks map[string]string
	err    error
}

// NewTablesModel creates a new tables model for kind
func NewTablesModel(stores store.Registry, kind store.Kind) *TablesModel {
	return &TablesModel{
		stores:  stores,
		kind:    kind,
		loading: true,
	}
}

// Init starts loading the tables
func (m *TablesModel) Init() tea.Cmd {
	return loadTables(m.stores, m.kind)
}

func loadTables(stores store.Registry, kind store.Kind) tea.Cmd {
	return func() tea.Msg {
		s, err := stores.Get(kind)
		if err != nil {
			return tablesLoadedMsg{kind: kind, err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tables, err := s.ListTables(ctx)
		if err != nil {
			return tablesLoadedMsg{kind: kind, err: err}
		}
		schema, err := s.Schema(ctx)
		if err != nil {
			return tablesLoadedMsg{kind: kind, tables: tables, err: err}
		}
		return tablesLoadedMsg{kind: kind, tables: tables, blocks: store.SplitSchema(schema)}
	}
}

// Update handles messages for the tables model
func (m *TablesModel) Update(msg tea.Msg) (*TablesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tablesLoadedMsg:
		if msg.kind != m.kind {
			return m, nil
		}
		m.loading = false
		m.tables = msg.tables
		m.blocks = msg.blocks
		m.err = msg.err
		m.selectedItem = 0
		GlobalAppState.TablesCount = len(msg.tables)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("esc", "q"))):
			return m, func() tea.Msg {
				return goToMenuMsg{}
			}

		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))):
			return m, tea.Quit

		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if len(m.tables) > 0 {
				m.selectedItem--
				if m.selectedItem < 0 {
					m.selectedItem = len(m.tables) - 1
				}
			}
			return m, nil

		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if len(m.tables) > 0 {
				m.selectedItem++
				if m.selectedItem >= len(m.tables) {
					m.selectedItem = 0
				}
			}
			return m, nil

		case key.Matches(msg, key.NewBinding(key.WithKeys("r"))):
			m.loading = true
			return m, loadTables(m.stores, m.kind)

		case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
			kinds := m.stores.Kinds()
			if len(kinds) < 2 {
				return m, nil
			}
			for i, k := range kinds {
				if k == m.kind {
					m.kind = kinds[(i+1)%len(kinds)]
					break
				}
			}
			GlobalAppState.Store = m.kind
			m.loading = true
			kind := m.kind
			return m, tea.Batch(
				loadTables(m.stores, kind),
				func() tea.Msg { return kindChangedMsg{kind: kind} },
			)
		}
	}

	return m, nil
}

// View renders the tables screen
func (m *TablesModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	header := RenderHeader("Tables")
	content := m.renderContent()
	helpText := "↑/k: up • ↓/j: down • tab: switch store • r: refresh • esc: back"
	footer := RenderHelpFooter(helpText, m.width)

	return LayoutWithHeaderFooter(header, content, footer, m.width, m.height)
}

func (m *TablesModel) renderContent() string {
	if m.loading {
		return lipgloss.NewStyle().
			Foreground(ColorOrange).
			Render("Loading " + string(m.kind) + " tables...")
	}
	if m.err != nil && len(m.tables) == 0 {
		return ErrorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.tables) == 0 {
		return lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true).
			Render("No tables in the " + string(m.kind) + " store")
	}

	listHeight := m.height - 14
	if listHeight < 5 {
		listHeight = 5
	}
	start := 0
	if m.selectedItem >= listHeight {
		start = m.selectedItem - listHeight + 1
	}

	var items []string
	items = append(items, TitleStyle.Render(fmt.Sprintf("%d tables", len(m.tables))), "")
	for i := start; i < len(m.tables) && i < start+listHeight; i++ {
		name := truncateStr(m.tables[i], 28)
		if i == m.selectedItem {
			items = append(items, ActiveStyle.Render("▶ "+name))
		} else {
			items = append(items, InactiveStyle.Render("  "+name))
		}
	}
	list := lipgloss.NewStyle().Width(32).Render(strings.Join(items, "\n"))

	detail := LabelStyle.Render("No column information")
	if block, ok := m.blocks[m.tables[m.selectedItem]]; ok {
		detail = QueryStyle.Render(block)
	} else if m.err != nil {
		detail = ErrorStyle.Render("Schema unavailable: " + m.err.Error())
	}
	detailBox := BoxStyle.
		BorderForeground(ColorBlue).
		Width(min(60, m.width-44))

	return lipgloss.JoinHorizontal(lipgloss.Top, list, "  ", detailBox.Render(detail))
}
