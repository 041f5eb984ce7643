package styles

import (
	"github.com/allbin/go-comport/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	// Status styles
	StatusWatchingStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusStoppedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusStartingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	// Event styles
	PlugStyle = lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true)

	UnplugStyle = lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(colors.Overlay0)

	MetaStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)

	// Content area styles
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	// Table styles
	TableBaseStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			BorderForeground(colors.Surface2)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(colors.Lavender).
				Bold(true)

	// Status bar styles
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0).
			Background(colors.Surface0).
			Padding(0, 1)

	// Error styles
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red).
			Align(lipgloss.Center)
)

type StatusType int

const (
	StatusWatching StatusType = iota
	StatusStopped
	StatusStarting
	StatusError
)

func GetStatusStyle(status StatusType) lipgloss.Style {
	switch status {
	case StatusWatching:
		return StatusWatchingStyle
	case StatusStopped:
		return StatusStoppedStyle
	case StatusStarting:
		return StatusStartingStyle
	case StatusError:
		return StatusStoppedStyle
	default:
		return StatusStoppedStyle
	}
}
