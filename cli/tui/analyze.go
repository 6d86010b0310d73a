package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/canvass/dbc"
	"github.com/justapithecus/canvass/layout"
	"github.com/justapithecus/canvass/runtime"
	"github.com/justapithecus/canvass/types"
)

// Controller is the coordinator surface the TUI drives. It is satisfied by
// *runtime.Coordinator and stubbed in tests.
type Controller interface {
	Focus(identifier uint32, frames []types.Frame)
	Rerun() error
	Cancel()
	Status() runtime.Status
	Schema() *types.Message
	Notifications() <-chan runtime.Notification
}

// analysisMsg wraps a coordinator notification into a Bubble Tea message.
type analysisMsg runtime.Notification

// AnalyzeModel is the Bubble Tea model for interactive capture analysis.
// The leftmost column lists the capture's identifiers; selecting one
// focuses it on the coordinator and the main pane tracks the analysis.
type AnalyzeModel struct {
	controller  Controller
	identifiers []uint32
	frames      map[uint32][]types.Frame
	savePath    string

	cursor       int
	signalCursor int
	feedback     string
	feedbackErr  bool
	width        int
	height       int
	quitting     bool
}

// NewAnalyzeModel creates the analysis model over a parsed capture.
func NewAnalyzeModel(controller Controller, identifiers []uint32, frames map[uint32][]types.Frame, savePath string) AnalyzeModel {
	return AnalyzeModel{
		controller:  controller,
		identifiers: identifiers,
		frames:      frames,
		savePath:    savePath,
	}
}

// Init implements tea.Model. The first identifier is focused immediately.
func (m AnalyzeModel) Init() tea.Cmd {
	if len(m.identifiers) > 0 {
		m.controller.Focus(m.identifiers[0], m.frames[m.identifiers[0]])
	}
	return m.waitForNotification()
}

// waitForNotification blocks on the coordinator's channel and re-enters
// the Bubble Tea loop when an outcome is committed.
func (m AnalyzeModel) waitForNotification() tea.Cmd {
	ch := m.controller.Notifications()
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return analysisMsg(n)
	}
}

// Update implements tea.Model.
func (m AnalyzeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case analysisMsg:
		// A completion may belong to an identifier the user already moved
		// away from; the view always renders from coordinator state, so
		// re-arming the listener is all that is needed.
		return m, m.waitForNotification()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m AnalyzeModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.controller.Cancel()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.focusSelected()
		}
		return m, nil

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.identifiers)-1 {
			m.cursor++
			m.focusSelected()
		}
		return m, nil

	case key.Matches(msg, keys.NextSignal):
		if n := m.signalCount(); n > 0 {
			m.signalCursor = (m.signalCursor + 1) % n
		}
		return m, nil

	case key.Matches(msg, keys.PrevSignal):
		if n := m.signalCount(); n > 0 {
			m.signalCursor = (m.signalCursor + n - 1) % n
		}
		return m, nil

	case key.Matches(msg, keys.Rerun):
		m.feedback = ""
		if err := m.controller.Rerun(); err != nil {
			m.setError(err.Error())
		}
		return m, nil

	case key.Matches(msg, keys.CancelJob):
		m.controller.Cancel()
		m.feedback = ""
		return m, nil

	case key.Matches(msg, keys.Save):
		m.saveSchema()
		return m, nil
	}

	return m, nil
}

func (m *AnalyzeModel) focusSelected() {
	m.signalCursor = 0
	m.feedback = ""
	m.feedbackErr = false
	id := m.identifiers[m.cursor]
	m.controller.Focus(id, m.frames[id])
}

func (m *AnalyzeModel) signalCount() int {
	schema := m.controller.Schema()
	if schema == nil {
		return 0
	}
	return len(schema.Signals)
}

func (m *AnalyzeModel) setError(text string) {
	m.feedback = text
	m.feedbackErr = true
}

func (m *AnalyzeModel) saveSchema() {
	schema := m.controller.Schema()
	if schema == nil {
		m.setError("no recovered schema to save")
		return
	}
	if err := dbc.Save(schema, m.savePath); err != nil {
		if errors.Is(err, dbc.ErrTargetExists) {
			m.setError(fmt.Sprintf("refusing to overwrite %s", m.savePath))
		} else {
			m.setError(err.Error())
		}
		return
	}
	m.feedback = fmt.Sprintf("saved schema to %s", m.savePath)
	m.feedbackErr = false
}

// View implements tea.Model.
func (m AnalyzeModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("canvass analyze"))
	b.WriteString("\n\n")

	b.WriteString(m.renderIdentifiers())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())

	if schema := m.controller.Schema(); schema != nil {
		b.WriteString("\n\n")
		b.WriteString(m.renderLayout(schema))
		b.WriteString("\n")
		b.WriteString(m.renderSignal(schema))
	}

	if m.feedback != "" {
		b.WriteString("\n\n")
		if m.feedbackErr {
			b.WriteString(ErrorStyle.Render(m.feedback))
		} else {
			b.WriteString(SuccessStyle.Render(m.feedback))
		}
	}

	help := HelpStyle.Render("up/down: identifier • tab: signal • r: rerun • c: cancel • s: save • q: quit")
	return b.String() + "\n" + help
}

func (m AnalyzeModel) renderIdentifiers() string {
	var b strings.Builder
	b.WriteString(LabelStyle.Render("Identifiers"))
	b.WriteString("\n")
	for i, id := range m.identifiers {
		line := fmt.Sprintf("0x%X (%d frames)", id, len(m.frames[id]))
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString(ValueStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderStatus mirrors the coordinator phases onto a single line. A cached
// result computed from an older capture snapshot is marked obsolete.
func (m AnalyzeModel) renderStatus() string {
	status := m.controller.Status()
	switch status.Phase {
	case runtime.PhaseRunning:
		return StatusStyle("running").Render("Analysis Running...")
	case runtime.PhaseCompleted:
		suffix := ""
		if status.Stale {
			suffix = " (obsolete)"
		}
		if status.Outcome.OK() {
			return StatusStyle("done").Render("Analysis Done" + suffix)
		}
		return StatusStyle("failed").Render("Analysis Failed"+suffix) +
			"\n" + ErrorStyle.Render(status.Outcome.Reason)
	default:
		return ValueStyle.Render("No analysis yet")
	}
}

// signalIndex clamps the signal cursor against the current schema. A rerun
// can commit a schema with fewer signals than the one the cursor was moved
// on; the cursor falls back to the first signal instead of indexing past
// the end.
func (m AnalyzeModel) signalIndex(schema *types.Message) int {
	if m.signalCursor >= len(schema.Signals) {
		return 0
	}
	return m.signalCursor
}

func (m AnalyzeModel) renderLayout(schema *types.Message) string {
	highlight := byte(0)
	if len(schema.Signals) > 0 {
		highlight = byte('a' + m.signalIndex(schema))
	}
	art, err := layout.Render(schema, highlight)
	if err != nil {
		return ErrorStyle.Render(err.Error())
	}
	return BoxStyle.Render(LayoutStyle.Render(art))
}

func (m AnalyzeModel) renderSignal(schema *types.Message) string {
	if len(schema.Signals) == 0 {
		return ""
	}
	index := m.signalIndex(schema)
	sig := schema.Signals[index]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Signal:"),
		ValueStyle.Render(fmt.Sprintf("%c  %s", 'a'+index, sig.Name))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Bits:"),
		ValueStyle.Render(fmt.Sprintf("start %d, length %d, %s", sig.Start, sig.Length, sig.ByteOrder))))
	b.WriteString(fmt.Sprintf("%s %s",
		LabelStyle.Render("Scaling:"),
		ValueStyle.Render(fmt.Sprintf("x*%g + %g %s", sig.Scale, sig.Offset, sig.Unit))))
	return b.String()
}

// keyMap defines key bindings for the analyze view.
type keyMap struct {
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
	NextSignal key.Binding
	PrevSignal key.Binding
	Rerun      key.Binding
	CancelJob  key.Binding
	Save       key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up", "previous identifier"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down", "next identifier"),
	),
	NextSignal: key.NewBinding(
		key.WithKeys("tab", "right"),
		key.WithHelp("tab", "next signal"),
	),
	PrevSignal: key.NewBinding(
		key.WithKeys("shift+tab", "left"),
		key.WithHelp("shift+tab", "previous signal"),
	),
	Rerun: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rerun analysis"),
	),
	CancelJob: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "cancel analysis"),
	),
	Save: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "save schema"),
	),
}

// RunAnalyzeTUI runs the interactive analysis session.
func RunAnalyzeTUI(controller Controller, identifiers []uint32, frames map[uint32][]types.Frame, savePath string) error {
	model := NewAnalyzeModel(controller, identifiers, frames, savePath)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
