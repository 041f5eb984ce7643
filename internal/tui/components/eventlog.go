package components

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-comport"
	"github.com/allbin/go-comport/internal/tui/styles"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// EventMsg carries one hotplug event into the TUI
type EventMsg struct {
	Timestamp time.Time
	Event     comport.Event
}

// EventLog is a scrolling viewport of received hotplug events. It keeps
// the raw events so the display can be re-rendered when the format
// toggles between pretty and JSON lines.
type EventLog struct {
	viewport viewport.Model
	events   []EventMsg
	asJSON   bool
}

func NewEventLog(width, height int) *EventLog {
	vp := viewport.New(width, height)
	return &EventLog{
		viewport: vp,
		events:   make([]EventMsg, 0),
	}
}

func (l *EventLog) SetSize(width, height int) {
	l.viewport.Width = width
	l.viewport.Height = height
}

func (l *EventLog) GetViewport() viewport.Model {
	return l.viewport
}

func (l *EventLog) AddEvent(msg EventMsg) {
	l.events = append(l.events, msg)
	l.refresh()
}

func (l *EventLog) Clear() {
	l.events = make([]EventMsg, 0)
	l.viewport.SetContent("")
}

func (l *EventLog) ToggleJSON() {
	l.asJSON = !l.asJSON
	l.refresh()
}

func (l *EventLog) refresh() {
	lines := make([]string, 0, len(l.events))
	for _, msg := range l.events {
		lines = append(lines, l.formatEvent(msg))
	}
	l.viewport.SetContent(strings.Join(lines, "\n"))
	if len(lines) > 0 {
		l.viewport.GotoBottom()
	}
}

func (l *EventLog) formatEvent(msg EventMsg) string {
	timestamp := styles.TimestampStyle.Render(msg.Timestamp.Format("15:04:05"))

	if l.asJSON {
		data, err := json.Marshal(msg.Event)
		if err != nil {
			return fmt.Sprintf("%s %v", timestamp, err)
		}
		return fmt.Sprintf("%s %s", timestamp, data)
	}

	var kind string
	switch msg.Event.Type {
	case comport.Plug:
		kind = styles.PlugStyle.Render("▲ Plug  ")
	case comport.Unplug:
		kind = styles.UnplugStyle.Render("▼ Unplug")
	}

	line := fmt.Sprintf("%s %s %-8s", timestamp, kind, msg.Event.Port)
	if meta := msg.Event.Meta; meta != nil {
		detail := fmt.Sprintf("%s:%s", meta.VendorID, meta.ProductID)
		if meta.SerialNumber != "" {
			detail += " " + meta.SerialNumber
		}
		if meta.Description != "" {
			detail += "  " + meta.Description
		}
		line += " " + styles.MetaStyle.Render(detail)
	}
	return line
}

func (l *EventLog) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// Only pass window sizing to the viewport so it never swallows the
	// monitor's key bindings.
	switch msg.(type) {
	case tea.WindowSizeMsg:
		return l.viewport.Update(msg)
	default:
		return l.viewport, nil
	}
}

func (l *EventLog) View() string {
	return l.viewport.View()
}
