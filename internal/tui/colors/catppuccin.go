package colors

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha color palette
var (
	// Base colors
	Surface0 = lipgloss.Color("#313244") // Surface colors
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086") // Overlay colors
	Subtext0 = lipgloss.Color("#a6adc8") // Text colors
	Text     = lipgloss.Color("#cdd6f4") // Main text

	// Accent colors
	Lavender = lipgloss.Color("#b4befe") // Light purple
	Blue     = lipgloss.Color("#89b4fa") // Blue
	Teal     = lipgloss.Color("#94e2d5") // Teal
	Green    = lipgloss.Color("#a6e3a1") // Green
	Yellow   = lipgloss.Color("#f9e2af") // Yellow
	Peach    = lipgloss.Color("#fab387") // Orange
	Red      = lipgloss.Color("#f38ba8") // Red
	Mauve    = lipgloss.Color("#cba6f7") // Purple
)
