package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Palette.
const (
	Ink    = lipgloss.Color("#E6E1CF")
	Dim    = lipgloss.Color("#7A7F8A")
	Accent = lipgloss.Color("#3097C6")
	Warn   = lipgloss.Color("#CC8B3F")
	Bad    = lipgloss.Color("#AC3835")
	Good   = lipgloss.Color("#A6A75D")
	Record = lipgloss.Color("#D33061")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(Ink)
	hintStyle    = lipgloss.NewStyle().Foreground(Dim)
	errorStyle   = lipgloss.NewStyle().Foreground(Bad).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(Good).Bold(true)
	recordStyle  = lipgloss.NewStyle().Foreground(Record).Bold(true)
	countStyle   = lipgloss.NewStyle().Foreground(Warn).Bold(true).Padding(1, 4).
			Border(lipgloss.RoundedBorder()).BorderForeground(Warn)
	frameStyle = lipgloss.NewStyle().Padding(1, 2).
			Border(lipgloss.RoundedBorder()).BorderForeground(Dim)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Bar renders a filled bar of width cells for value out of total, with a
// percentage label.
func Bar(value, total, width int) string {
	if width < 4 {
		width = 4
	}
	pct := 0
	if total > 0 {
		pct = value * 100 / total
	}
	pct = max(0, min(pct, 100))
	filled := width * pct / 100
	return lipgloss.NewStyle().Foreground(Good).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(Dim).Render(strings.Repeat("░", width-filled)) +
		textStyle.Render(fmt.Sprintf(" %3d%%", pct))
}

// Theme is the huh theme of the test type picker.
func Theme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = titleStyle
	t.Focused.Description = hintStyle
	t.Focused.SelectSelector = lipgloss.NewStyle().SetString("▸ ").Foreground(Accent)
	t.Focused.Option = textStyle
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(Accent)
	return t
}
