// Package watch is the `spool watch` terminal monitor: queue depth per
// transport, lifecycle counters and a live event stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every style of the monitor in one place.
type Theme struct {
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Failed  lipgloss.Style
	Neutral lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	DotOn  lipgloss.Style
	DotOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Neutral: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		DotOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		DotOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
