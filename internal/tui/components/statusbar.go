package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-comport/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the single-line bar at the bottom of the hotplug monitor:
// session name, subscription state, event counters and a clock.
type StatusBar struct {
	title   string
	session string
	status  styles.StatusType
	err     error
	width   int

	plugs   int
	unplugs int
}

func NewStatusBar(title, session string) *StatusBar {
	return &StatusBar{
		title:   title,
		session: session,
		status:  styles.StatusStarting,
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetWatching() {
	sb.status = styles.StatusWatching
	sb.err = nil
}

func (sb *StatusBar) SetStopped(err error) {
	if err != nil {
		sb.status = styles.StatusError
		sb.err = err
	} else {
		sb.status = styles.StatusStopped
		sb.err = nil
	}
}

func (sb *StatusBar) RecordPlug()   { sb.plugs++ }
func (sb *StatusBar) RecordUnplug() { sb.unplugs++ }

func (sb *StatusBar) statusText() string {
	switch sb.status {
	case styles.StatusWatching:
		return "WATCHING"
	case styles.StatusStopped:
		return "STOPPED"
	case styles.StatusStarting:
		return "STARTING"
	case styles.StatusError:
		return fmt.Sprintf("FAILED: %v", sb.err)
	default:
		return "UNKNOWN"
	}
}

func (sb *StatusBar) View(attached int) string {
	title := styles.TitleStyle.Render(sb.title)
	state := styles.GetStatusStyle(sb.status).Render(sb.statusText())

	left := fmt.Sprintf("%s %s session=%s", title, state, sb.session)
	right := fmt.Sprintf("%d attached  ▲%d ▼%d  %s",
		attached, sb.plugs, sb.unplugs, time.Now().Format("15:04:05"))

	gap := sb.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return styles.StatusBarStyle.Width(sb.width).Render(
		left + strings.Repeat(" ", gap) + right)
}
