// Package tui renders prisync state for the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorCyan    = lipgloss.Color("86")
	ColorGreen   = lipgloss.Color("78")
	ColorYellow  = lipgloss.Color("221")
	ColorRed     = lipgloss.Color("196")
	ColorMagenta = lipgloss.Color("213")
	ColorBlue    = lipgloss.Color("111")
	ColorGray    = lipgloss.Color("245")
	ColorDimGray = lipgloss.Color("239")
)

// Walk status styles
var (
	StatusIdle    = lipgloss.NewStyle().Foreground(ColorGreen)
	StatusWalking = lipgloss.NewStyle().Foreground(ColorYellow)
	StatusStale   = lipgloss.NewStyle().Foreground(ColorRed)
	StatusNever   = lipgloss.NewStyle().Foreground(ColorDimGray)
)

// Source colors
var SourceColors = map[string]lipgloss.Color{
	"repo-scan": ColorBlue,
	"task-feed": ColorMagenta,
}

// Common styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)
)

// Status indicators
const (
	IndicatorIdle    = "●"
	IndicatorWalking = "◐"
	IndicatorStale   = "○"
	IndicatorNever   = "·"
)

// GetSourceStyle returns the style for a checkpoint source.
func GetSourceStyle(source string) lipgloss.Style {
	color, ok := SourceColors[source]
	if !ok {
		color = ColorGray
	}
	return lipgloss.NewStyle().Foreground(color)
}
