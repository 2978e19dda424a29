package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Kartoza palette
var (
	ColorOrange   = lipgloss.Color("#DDA036")
	ColorBlue     = lipgloss.Color("#569FC6")
	ColorGray     = lipgloss.Color("#9A9EA0")
	ColorWhite    = lipgloss.Color("#FFFFFF")
	ColorDarkGray = lipgloss.Color("#3A3A3A")
	ColorRed      = lipgloss.Color("#E95420")
	ColorGreen    = lipgloss.Color("#4CAF50")
	ColorCyan     = lipgloss.Color("#00BCD4")
)

const headerWidth = 64

// AppState is what the header shows on every screen
type AppState struct {
	Store         store.Kind
	Dialect       string
	IsConnected   bool
	TablesCount   int
	QuestionCount int
	// Status is "Ready", "Connected", "Offline" or a busy state such as
	// "Thinking"; busy states blink
	Status  string
	BlinkOn bool
}

// GlobalAppState is owned by AppModel and read by the screens
var GlobalAppState = &AppState{
	Store:   store.Relational,
	Status:  "Ready",
	BlinkOn: true,
}

func (s *AppState) busy() bool {
	switch s.Status {
	case "Ready", "Connected", "Offline":
		return false
	}
	return true
}

// statusSegments returns the parts of the header status line
func (s *AppState) statusSegments() []string {
	name := string(s.Store)
	if s.Dialect != "" {
		name = fmt.Sprintf("%s (%s)", name, s.Dialect)
	}
	storeStyle := lipgloss.NewStyle().Foreground(ColorGray)
	tables := "-"
	if s.IsConnected {
		storeStyle = storeStyle.Foreground(ColorGreen).Bold(true)
		tables = strconv.Itoa(s.TablesCount)
	}

	status := s.Status
	if s.busy() && !s.BlinkOn {
		status = strings.Repeat(" ", len(status))
	}
	return []string{
		"Store: " + storeStyle.Render(name),
		"Tables: " + tables,
		"Questions: " + strconv.Itoa(s.QuestionCount),
		status,
	}
}

// RenderHeader renders the block shown at the top of every screen:
//
//	Kartoza NL2SQL - Ask
//	Natural Language Database Interface
//	────────────────────────────────
//	Store: relational (MySQL) | Tables: 12 | Questions: 3 | Ready
//	────────────────────────────────
func RenderHeader(pageTitle string) string {
	line := lipgloss.NewStyle().Width(headerWidth).Align(lipgloss.Center)
	rule := line.Foreground(ColorGray).Render(strings.Repeat("─", headerWidth))

	return lipgloss.JoinVertical(lipgloss.Center,
		line.Bold(true).Foreground(ColorOrange).Render("Kartoza NL2SQL - "+pageTitle),
		line.Italic(true).Foreground(ColorGray).Render("Natural Language Database Interface"),
		rule,
		line.Foreground(ColorWhite).Render(strings.Join(GlobalAppState.statusSegments(), " | ")),
		rule,
	)
}

// RenderHelpFooter renders the key help centered across width
func RenderHelpFooter(helpText string, width int) string {
	help := lipgloss.NewStyle().Foreground(ColorGray).Italic(true).Render(helpText)
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, help)
}

// LayoutWithHeaderFooter stacks header, content and footer, giving the
// content whatever height is left
func LayoutWithHeaderFooter(header, content, footer string, width, height int) string {
	header = lipgloss.PlaceHorizontal(width, lipgloss.Center, header)
	footer = lipgloss.PlaceHorizontal(width, lipgloss.Center, footer)

	body := max(height-lipgloss.Height(header)-lipgloss.Height(footer)-2, 1)
	content = lipgloss.Place(width, body, lipgloss.Center, lipgloss.Top, content)

	return lipgloss.JoinVertical(lipgloss.Left, header, "", content, footer)
}

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorOrange).
			Padding(1, 2)

	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorOrange)
	LabelStyle    = lipgloss.NewStyle().Foreground(ColorGray)
	ValueStyle    = lipgloss.NewStyle().Foreground(ColorWhite)
	ActiveStyle   = lipgloss.NewStyle().Foreground(ColorOrange).Bold(true)
	InactiveStyle = lipgloss.NewStyle().Foreground(ColorGray)
	ErrorStyle    = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	QueryStyle    = lipgloss.NewStyle().Foreground(ColorCyan)
	PromptStyle   = lipgloss.NewStyle().Foreground(ColorOrange).Bold(true)
)

func repeatChar(char string, count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(char, count)
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// truncateStr shortens s to maxLen runes, marking the cut with "..."
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	switch {
	case len(r) <= maxLen:
		return s
	case maxLen <= 3:
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func labelStyle(label string) lipgloss.Style {
	switch label {
	case pipeline.LabelQueryNeeded:
		return lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	case pipeline.LabelNoQueryNeeded:
		return lipgloss.NewStyle().Foreground(ColorGray).Bold(true)
	}
	return ErrorStyle
}
