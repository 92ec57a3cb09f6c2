// Package tui renders live mission telemetry in the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"fleetsim/internal/telemetry"
)

const maxLogLines = 500

// eventMsg carries one telemetry event into the model.
type eventMsg struct{ telemetry.Event }

// connMsg reports the state of the event stream connection.
type connMsg struct {
	connected bool
	err       error
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyles = map[string]lipgloss.Style{
		"in-progress": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"paused":      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"completed":   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"aborted":     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type model struct {
	table      table.Model
	vp         viewport.Model
	latest     map[string]telemetry.Event
	logs       []string
	wrap       bool
	autoscroll bool
	connected  bool
	lastErr    error
	width      int
	height     int
}

func newModel() model {
	cols := []table.Column{
		{Title: "Mission", Width: 14},
		{Title: "Drone", Width: 14},
		{Title: "Status", Width: 12},
		{Title: "Progress", Width: 8},
		{Title: "Battery", Width: 8},
		{Title: "Position", Width: 30},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(8))
	return model{
		table:      t,
		vp:         viewport.New(0, 0),
		latest:     make(map[string]telemetry.Event),
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "j", "down":
			m.vp.LineDown(1)
		case "k", "up":
			m.vp.LineUp(1)
		}
	case eventMsg:
		m.latest[msg.MissionID] = msg.Event
		m.logs = append(m.logs, formatEvent(msg.Event))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshTable()
		m.refreshViewport()
	case connMsg:
		m.connected = msg.connected
		m.lastErr = msg.err
	}
	return m, nil
}

func (m *model) updateViewportHeight() {
	h := m.height - m.table.Height() - 4
	if h < 3 {
		h = 3
	}
	m.vp.Height = h
}

func (m *model) refreshTable() {
	ids := make([]string, 0, len(m.latest))
	for id := range m.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		e := m.latest[id]
		rows = append(rows, table.Row{
			e.MissionID,
			e.DroneID,
			e.Status,
			fmt.Sprintf("%d%%", e.Progress),
			fmt.Sprintf("%.1f%%", e.Battery),
			fmt.Sprintf("(%.5f, %.5f) %dm", e.CurrentWaypoint.Lat, e.CurrentWaypoint.Lng, int(e.CurrentWaypoint.Alt)),
		})
	}
	m.table.SetRows(rows)
}

func (m *model) refreshViewport() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	conn := statusStyles["in-progress"].Render("connected")
	if !m.connected {
		conn = statusStyles["aborted"].Render("disconnected")
		if m.lastErr != nil {
			conn += dimStyle.Render(" (" + m.lastErr.Error() + ")")
		}
	}
	header := headerStyle.Render("fleetsim missions") + "  " + conn
	footer := dimStyle.Render("q quit  w wrap  s autoscroll  j/k scroll")
	return header + "\n" + m.table.View() + "\n" + m.vp.View() + "\n" + footer
}

func formatEvent(e telemetry.Event) string {
	style, ok := statusStyles[e.Status]
	if !ok {
		style = dimStyle
	}
	return fmt.Sprintf("%s mission=%s drone=%s %s progress=%d%% batt=%.1f pos=(%.5f,%.5f,%.1f)",
		dimStyle.Render("["+e.Timestamp.Format(time.RFC3339)+"]"),
		e.MissionID, e.DroneID,
		style.Render(e.Status),
		e.Progress, e.Battery,
		e.CurrentWaypoint.Lat, e.CurrentWaypoint.Lng, e.CurrentWaypoint.Alt,
	)
}
