// Package tui provides Bubble Tea views for the imagestream CLI.
//
// TUI is opt-in (--tui). The inspect view renders the same payload as the
// json, table and yaml outputs; the watch view follows a live stream.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Frame states map onto the last four.
var (
	accentColor   = lipgloss.Color("#38BDF8") // sky
	dimColor      = lipgloss.Color("#64748B") // slate
	brightColor   = lipgloss.Color("#F8FAFC")
	completeColor = lipgloss.Color("#22C55E")
	activeColor   = lipgloss.Color("#EAB308")
	missingColor  = lipgloss.Color("#F97316")
	failedColor   = lipgloss.Color("#DC2626")
)

var (
	// TitleStyle renders view titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)

	// SectionStyle renders headings inside a view.
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginTop(1)

	// LabelStyle renders field names and FITS keywords, which are at most
	// eight characters.
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(14)

	// ValueStyle renders field values.
	ValueStyle = lipgloss.NewStyle().Foreground(brightColor)

	// ErrorStyle renders stream errors.
	ErrorStyle = lipgloss.NewStyle().Foreground(failedColor).Bold(true)

	// BoxStyle frames a whole view.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(1, 2)

	// HelpStyle renders key hints.
	HelpStyle = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	// StatBoxStyle frames one counter in the watch view.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(13).
			Align(lipgloss.Center)

	// StatLabelStyle renders counter names.
	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor)

	// StatValueStyle renders counter values.
	StatValueStyle = lipgloss.NewStyle().Bold(true)
)

var stateColors = map[string]lipgloss.Color{
	StateComplete:   completeColor,
	StateReceiving:  activeColor,
	StateRefetching: missingColor,
	StateIncomplete: failedColor,
	StateError:      failedColor,
}

// StateStyle returns the style for a frame state.
func StateStyle(state string) lipgloss.Style {
	c, ok := stateColors[state]
	if !ok {
		return ValueStyle
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}
