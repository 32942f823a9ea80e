package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the dashboard TUI.
var (
	colorRed    = lipgloss.Color("#FF5555")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#666666")
	colorWhite  = lipgloss.Color("#F8F8F2")
)

// Base styles reused by the views.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	alertStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
