/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allbin/go-comport"
	"github.com/allbin/go-comport/internal/tui/components"
	"github.com/allbin/go-comport/internal/tui/keys"
	"github.com/allbin/go-comport/internal/tui/models"
	"github.com/allbin/go-comport/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream serial port plug and unplug events",
	Long: `Watch serial ports being attached and removed in real time.

Already-attached ports are replayed as Plug events first, then live
device-change notifications follow until interrupted with Ctrl+C. By
default events are printed one per line; --json switches to the JSON
wire format and --tui opens a full-screen monitor with a live table of
attached ports.

Examples:
  comport watch
  comport watch --json
  comport watch --tui
  comport watch --rescan 30s
  comport watch --session lab --no-initial-scan`,
	Run: func(cmd *cobra.Command, args []string) {
		noInitialScan, _ := cmd.Flags().GetBool("no-initial-scan")
		buffer, _ := cmd.Flags().GetInt("buffer")
		rescanEvery, _ := cmd.Flags().GetDuration("rescan")
		asJSON, _ := cmd.Flags().GetBool("json")
		useTUI, _ := cmd.Flags().GetBool("tui")

		opts := []comport.SessionOption{
			comport.WithLogger(newLogger()),
			comport.WithInitialScan(!noInitialScan),
		}
		if buffer > 0 {
			opts = append(opts, comport.WithBufferSize(buffer))
		}

		handle, stream, err := comport.Listen(sessionName(), opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening subscription: %v\n", err)
			os.Exit(1)
		}

		if useTUI {
			err = runWatchTUI(handle, stream, rescanEvery)
		} else {
			err = runWatchPlain(handle, stream, rescanEvery, asJSON)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("no-initial-scan", false, "Do not replay already-attached ports as Plug events")
	watchCmd.Flags().Int("buffer", 0, "Per-subscriber event buffer size (0 = default)")
	watchCmd.Flags().Duration("rescan", 0, "Periodically re-enumerate and emit synthetic events (0 = off)")
	watchCmd.Flags().Bool("json", false, "Emit events in the JSON wire format")
	watchCmd.Flags().Bool("tui", false, "Open the full-screen hotplug monitor")
}

// runWatchPlain streams events to stdout until the stream completes
func runWatchPlain(handle *comport.AbortHandle, stream *comport.EventStream, rescanEvery time.Duration, asJSON bool) error {
	// Setup signal handler for Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nStopping watch...")
		handle.Abort()
	}()

	done := make(chan struct{})
	defer close(done)
	if rescanEvery > 0 {
		go func() {
			ticker := time.NewTicker(rescanEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := comport.Rescan(sessionName()); err != nil {
						fmt.Fprintf(os.Stderr, "Rescan failed: %v\n", err)
					}
				}
			}
		}()
	}

	enc := json.NewEncoder(os.Stdout)
	for ev := range stream.Events() {
		if asJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		printEvent(ev)
	}
	return stream.Err()
}

func printEvent(ev comport.Event) {
	timestamp := time.Now().Format("15:04:05")
	if ev.Meta != nil {
		fmt.Printf("[%s] %-6s %s %s:%s %s\n", timestamp, ev.Type, ev.Port,
			ev.Meta.VendorID, ev.Meta.ProductID, ev.Meta.SerialNumber)
		return
	}
	fmt.Printf("[%s] %-6s %s\n", timestamp, ev.Type, ev.Port)
}

// watchModel represents the Bubble Tea model for the watch command
type watchModel struct {
	*models.WatchModel
	portsTable *components.PortsTable
	eventLog   *components.EventLog
	statusBar  *components.StatusBar
	help       help.Model
	keys       keys.WatchKeys

	rescanEvery time.Duration
}

func runWatchTUI(handle *comport.AbortHandle, stream *comport.EventStream, rescanEvery time.Duration) error {
	session := sessionName()

	m := watchModel{
		WatchModel:  models.NewWatchModel(session, handle, stream),
		portsTable:  components.NewPortsTable(80),
		eventLog:    components.NewEventLog(80, 12),
		statusBar:   components.NewStatusBar("Hotplug Monitor", session),
		help:        help.New(),
		keys:        keys.NewWatchKeys(),
		rescanEvery: rescanEvery,
	}
	m.statusBar.SetWatching()

	p := tea.NewProgram(&m, tea.WithAltScreen())
	_, err := p.Run()

	// Ensure cleanup
	m.Cleanup()
	return err
}

// waitForEvent blocks on the stream and hands the next event to Update
func waitForEvent(m *models.WatchModel) tea.Cmd {
	stream := m.GetStream()
	return func() tea.Msg {
		select {
		case <-m.GetContext().Done():
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return models.StreamClosedMsg{Err: stream.Err()}
			}
			return components.EventMsg{Timestamp: time.Now(), Event: ev}
		}
	}
}

func rescanCmd(session string) tea.Cmd {
	return func() tea.Msg {
		return models.RescanMsg{Err: comport.Rescan(session)}
	}
}

func rescanTick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return rescanTickMsg{}
	})
}

type rescanTickMsg struct{}

func (m *watchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.WatchModel)}
	if m.rescanEvery > 0 {
		cmds = append(cmds, rescanTick(m.rescanEvery))
	}
	return tea.Batch(cmds...)
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Fixed-height table on top, status bar at the bottom, the
		// event log takes the rest.
		tableHeight := 12
		statusBarHeight := 1
		logHeight := msg.Height - tableHeight - statusBarHeight - 1
		if logHeight < 3 {
			logHeight = 3
		}
		m.portsTable.SetWidth(msg.Width)
		m.portsTable.SetPageSize(tableHeight - 4)
		m.eventLog.SetSize(msg.Width, logHeight)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case components.EventMsg:
		m.portsTable.Apply(msg.Event)
		m.eventLog.AddEvent(msg)
		switch msg.Event.Type {
		case comport.Plug:
			m.statusBar.RecordPlug()
		case comport.Unplug:
			m.statusBar.RecordUnplug()
		}
		cmds = append(cmds, waitForEvent(m.WatchModel))

	case models.StreamClosedMsg:
		m.SetStopped(msg.Err)
		m.statusBar.SetStopped(msg.Err)

	case models.RescanMsg:
		// Enumeration failures are transient; the next rescan retries.

	case rescanTickMsg:
		if m.IsWatching() {
			cmds = append(cmds, rescanCmd(m.GetSession()), rescanTick(m.rescanEvery))
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Cleanup()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Rescan):
			if m.IsWatching() {
				cmds = append(cmds, rescanCmd(m.GetSession()))
			}

		case key.Matches(msg, m.keys.Clear):
			m.eventLog.Clear()

		case key.Matches(msg, m.keys.ToggleJSON):
			m.eventLog.ToggleJSON()

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}

	// Update the log viewport for window resize messages
	switch msg.(type) {
	case tea.WindowSizeMsg:
		_, cmd := m.eventLog.Update(msg)
		cmds = append(cmds, cmd, m.portsTable.Update(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *watchModel) View() string {
	if !m.IsReady() {
		return "Initializing..."
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		m.portsTable.View(),
		styles.ContentBorderStyle.Render(m.eventLog.View()),
	)

	statusBar := m.statusBar.View(m.portsTable.Count())

	if m.help.ShowAll {
		helpStyle := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2).
			Margin(1, 0)
		return lipgloss.JoinVertical(
			lipgloss.Left,
			content,
			helpStyle.Render(m.help.View(m.keys)),
			statusBar,
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		content,
		statusBar,
	)
}
