// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/greenline/pkg/control"
	"github.com/Thermoquad/greenline/pkg/lineproto"
	"github.com/Thermoquad/greenline/pkg/session"
)

type logLevel uint8

const (
	levelInfo logLevel = iota
	levelCommand
	levelWarning
	levelError
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	level     logLevel
}

// Latest reading for one tag
type readingEntry struct {
	timestamp time.Time
	value     int64
	side      string
}

// TUI model
type monitorModel struct {
	connInfo       string
	deploymentName string
	sessionID      string
	policies       []control.Policy
	commandNames   []control.CommandName
	showFrames     bool

	stats         *lineproto.Statistics
	send          func(control.CommandName) error
	input         textinput.Model
	eventLog      []logEntry
	maxLogEntries int
	readings      map[string]readingEntry
	lastCommands  map[control.CommandName]time.Time
	started       time.Time

	ended    bool
	endErr   error
	width    int
	height   int
	quitting bool
}

// Messages
type monitorTickMsg time.Time
type eventMsg session.Event
type logLineMsg string
type sessionEndedMsg struct {
	err error
}
type sendResultMsg struct {
	name control.CommandName
	err  error
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialMonitorModel(connInfo, deploymentName, sessionID string, policies []control.Policy,
	vocab control.Vocabulary, stats *lineproto.Statistics, send func(control.CommandName) error, showFrames bool) monitorModel {
	names := vocab.Names()

	ti := textinput.New()
	ti.Prompt = "> "
	if len(names) > 0 {
		ti.Placeholder = string(names[0])
	}
	ti.CharLimit = 32
	ti.Width = 24
	ti.Focus()

	return monitorModel{
		connInfo:       connInfo,
		deploymentName: deploymentName,
		sessionID:      sessionID,
		policies:       policies,
		commandNames:   names,
		showFrames:     showFrames,
		stats:          stats,
		send:           send,
		input:          ti,
		eventLog:       make([]logEntry, 0),
		maxLogEntries:  200,
		readings:       make(map[string]readingEntry),
		lastCommands:   make(map[control.CommandName]time.Time),
		started:        time.Now(),
		width:          80,
		height:         24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		textinput.Blink,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func sendCommandCmd(send func(control.CommandName) error, name control.CommandName) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{name: name, err: send(name)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			name := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if name == "" {
				return m, nil
			}
			if m.ended {
				m.addLogEntry(fmt.Sprintf("Not sent, session has ended: %s", name), levelError)
				return m, nil
			}
			return m, sendCommandCmd(m.send, control.CommandName(name))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case eventMsg:
		m.handleEvent(session.Event(msg))
		return m, nil

	case logLineMsg:
		m.addLogEntry(string(msg), levelInfo)
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Operator command %s failed: %v", msg.name, msg.err), levelError)
		}
		return m, nil

	case sessionEndedMsg:
		m.ended = true
		m.endErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Session ended: %v", msg.err), levelError)
		} else {
			m.addLogEntry("Session ended, press Esc to quit", levelWarning)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) handleEvent(e session.Event) {
	switch e.Kind {
	case session.EventFrame:
		if m.showFrames {
			m.addLogEntry("RX "+lineproto.FormatPayload(e.Frame.Payload()), levelInfo)
		}

	case session.EventReading:
		entry := readingEntry{timestamp: e.Time, value: e.Reading.Value}
		for _, p := range m.policies {
			if p.Tag == e.Reading.Tag {
				entry.side = p.Classify(e.Reading.Value).String()
				break
			}
		}
		m.readings[e.Reading.Tag] = entry

	case session.EventCommand:
		m.lastCommands[e.Command.Name] = e.Time
		m.addLogEntry(fmt.Sprintf("TX %s (%s, %s)", e.Command.Payload, e.Command.Name, e.Source), levelCommand)

	case session.EventMalformed:
		m.addLogEntry("No value in "+lineproto.FormatPayload(e.Frame.Payload()), levelWarning)

	case session.EventOversize:
		m.addLogEntry(fmt.Sprintf("Dropped frame: %v", e.Err), levelWarning)

	case session.EventSendError:
		m.addLogEntry(fmt.Sprintf("%s failed: %v", e.Command.Name, e.Err), levelError)

	case session.EventClosed:
		m.addLogEntry("Gateway closed the connection", levelWarning)
	}
}

func (m *monitorModel) addLogEntry(message string, level logLevel) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		level:     level,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("10")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	commandStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("14"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("GREENLINE - GATEWAY MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Deployment: %s | Session: %s | Esc to quit",
		m.connInfo, m.deploymentName, shortID(m.sessionID))))
	s.WriteString("\n\n")

	if m.ended {
		if m.endErr != nil {
			s.WriteString(errorStyle.Render("✗ Session failed"))
		} else {
			s.WriteString(warningStyle.Render("■ Session ended"))
		}
	} else {
		s.WriteString(valueStyle.Render("● Connected"))
		s.WriteString(headerStyle.Render(" for " + formatUptime(time.Since(m.started))))
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Readings:"), valueStyle.Render(fmt.Sprintf("%d", snap.Readings)),
		labelStyle.Render("Commands:"), commandStyle.Render(fmt.Sprintf("%d", snap.TotalCommands)),
	))

	if snap.IgnoredFrames > 0 || snap.MalformedFrames > 0 || snap.OversizeFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Ignored:"), headerStyle.Render(fmt.Sprintf("%d", snap.IgnoredFrames)),
			labelStyle.Render("Malformed:"), warningStyle.Render(fmt.Sprintf("%d", snap.MalformedFrames)),
			labelStyle.Render("Oversize:"), warningStyle.Render(fmt.Sprintf("%d", snap.OversizeFrames)),
		))
	}

	if snap.SendErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Send Errors:"), errorStyle.Render(fmt.Sprintf("%d", snap.SendErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.2f frames/s", snap.FrameRate)),
		labelStyle.Render("Command Rate:"), commandStyle.Render(fmt.Sprintf("%.2f cmds/s", snap.CommandRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Sensors and actuators side by side
	sensorContent := strings.Builder{}
	if len(m.readings) == 0 {
		sensorContent.WriteString(headerStyle.Render("(no readings yet)"))
	} else {
		tags := make([]string, 0, len(m.readings))
		for tag := range m.readings {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for i, tag := range tags {
			r := m.readings[tag]
			if i > 0 {
				sensorContent.WriteString("\n")
			}
			sensorContent.WriteString(fmt.Sprintf("%s %s %s %s",
				labelStyle.Render(tag+":"),
				valueStyle.Render(fmt.Sprintf("%d", r.value)),
				headerStyle.Render("("+r.side+")"),
				headerStyle.Render(r.timestamp.Format(lineproto.TimestampFormat)),
			))
		}
	}

	actuatorContent := strings.Builder{}
	for i, name := range m.commandNames {
		if i > 0 {
			actuatorContent.WriteString("\n")
		}
		last := "never"
		if t, ok := m.lastCommands[name]; ok {
			last = t.Format(lineproto.TimestampFormat)
		}
		actuatorContent.WriteString(fmt.Sprintf("%s %s %s",
			labelStyle.Render(string(name)+":"),
			commandStyle.Render(fmt.Sprintf("%d", snap.Commands[string(name)])),
			headerStyle.Render(last),
		))
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(labelStyle.Render("Sensors")+"\n"+sensorContent.String()),
		" ",
		boxStyle.Render(labelStyle.Render("Commands")+"\n"+actuatorContent.String()),
	))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22 - len(m.commandNames) // Reserve space for header, stats and input
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := headerStyle.Render(entry.timestamp.Format(lineproto.TimestampFormat))
			switch entry.level {
			case levelCommand:
				logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, commandStyle.Render("→ "+entry.message)))
			case levelWarning:
				logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message)))
			case levelError:
				logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
			default:
				logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, entry.message))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")

	// Operator command input
	names := make([]string, len(m.commandNames))
	for i, n := range m.commandNames {
		names[i] = string(n)
	}
	s.WriteString(labelStyle.Render("Send command "))
	s.WriteString(m.input.View())
	s.WriteString(headerStyle.Render("  " + strings.Join(names, ", ")))

	return s.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
