package cmd

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	colorAccent = lipgloss.Color("#A8D8EA")
	colorMuted  = lipgloss.Color("#6c757d")
	colorGood   = lipgloss.Color("#4ECDC4")
	colorAlert  = lipgloss.Color("#FF6B6B")
	colorWarn   = lipgloss.Color("#FFE66D")
)

var (
	styleTitle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleHeader = lipgloss.NewStyle().
			Foreground(colorMuted).
			Bold(true).
			Padding(0, 1)

	styleCell = lipgloss.NewStyle().Padding(0, 1)

	styleStatusGood = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleStatusBad  = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
	styleStatusWarn = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
)
