package ui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/jarvis/internal/session"
)

// frameInterval paces visualizer redraws.
const frameInterval = 50 * time.Millisecond

// visualizerRows is the height of the visualizer section.
const visualizerRows = 4

// logRows is the height of the log section.
const logRows = 5

// Controller is the part of the session controller the UI drives.
type Controller interface {
	Snapshot() session.Snapshot
	FrequencyData() []byte
	Toggle(ctx context.Context) error
	OnChange(fn func())
}

var _ Controller = (*session.Controller)(nil)

type (
	changeMsg struct{}
	frameMsg  time.Time
	logMsg    string
	toggleMsg struct{ err error }
)

// Model is the bubbletea model of the voice client.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	logs    *LogWriter
	changes chan struct{}
	styles  Styles

	snap     session.Snapshot
	freq     []byte
	phase    float64
	logLines []string
	width    int
	height   int
	quitting bool
}

// NewModel creates a model bound to ctrl. ctx is passed to Toggle. logs may
// be nil.
func NewModel(ctx context.Context, ctrl Controller, logs *LogWriter) Model {
	changes := make(chan struct{}, 1)
	ctrl.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		logs:    logs,
		changes: changes,
		styles:  NewStyles(DefaultTheme),
		snap:    ctrl.Snapshot(),
	}
	if logs != nil {
		m.logLines = logs.Lines()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitChange(), m.listenLogs(), m.tick())
}

func (m Model) waitChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changeMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) listenLogs() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case line := <-m.logs.Channel():
			return logMsg(line)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) toggle() tea.Cmd {
	return func() tea.Msg {
		return toggleMsg{err: m.ctrl.Toggle(m.ctx)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter", " ":
			if _, enabled := ButtonLabel(m.snap.State); enabled {
				return m, m.toggle()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changeMsg:
		m.snap = m.ctrl.Snapshot()
		return m, m.waitChange()

	case toggleMsg:
		if msg.err != nil {
			slog.Debug("toggle failed", "err", msg.err)
		}
		m.snap = m.ctrl.Snapshot()

	case logMsg:
		m.logLines = append(m.logLines, string(msg))
		if len(m.logLines) > 50 {
			m.logLines = m.logLines[len(m.logLines)-50:]
		}
		return m, m.listenLogs()

	case frameMsg:
		m.freq = m.ctrl.FrequencyData()
		m.phase += 0.2
		return m, m.tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye.\n"
	}

	state := m.snap.State
	status := m.styles.Status[state.String()].Render("● " + StatusText(state))
	label, enabled := ButtonLabel(state)
	help := "enter=" + label + "  q=quit"
	if !enabled {
		help = label + "  q=quit"
	}

	inner := max(m.width-4, 1)
	frame := Frame{
		Styles: m.styles,
		Title:  "J.A.R.V.I.S.",
		Status: status,
		Sections: []Section{
			{Label: " Conversation ", Lines: TranscriptLines(m.snap.Transcript, inner, m.styles)},
			{Label: " Output ", Lines: m.visualizer(inner), Height: visualizerRows},
			{Label: " Log ", Lines: m.logLines, Height: logRows},
		},
		Help: help,
	}
	return frame.Render(m.width, m.height)
}

// visualizer renders the output section: spectrum bars while audio plays,
// an idle wave while listening, and the error message below when present.
func (m Model) visualizer(width int) []string {
	rows := visualizerRows
	if m.snap.Error != "" {
		rows--
	}
	var lines []string
	switch {
	case m.freq != nil && !silent(m.freq):
		for _, row := range Bars(m.freq, width, rows) {
			lines = append(lines, m.styles.Bars.Render(row))
		}
	case m.snap.State == session.Listening:
		for _, row := range Wave(m.phase, width, rows) {
			lines = append(lines, m.styles.Bars.Render(row))
		}
	default:
		lines = make([]string, rows)
	}
	if m.snap.Error != "" {
		lines = append(lines, m.styles.Error.Render(m.snap.Error))
	}
	return lines
}
