// Package dashboard is the terminal operator console: one panel per
// printer in the latest snapshot plus an add-printer form.
//
// The Model never mutates printer state on its own. Commands go out
// through a Dispatcher and the effect shows up in a later snapshot.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/nantokaworks/printer-fleet/internal/channel"
	"github.com/nantokaworks/printer-fleet/internal/clock"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
)

const (
	defaultStaleAfter = 30 * time.Second
	refreshInterval   = time.Second
)

// SnapshotMsg delivers an applied snapshot to the program.
type SnapshotMsg struct {
	Snapshot protocol.FleetSnapshot
	At       time.Time
}

// ChannelStateMsg reports a channel lifecycle transition.
type ChannelStateMsg struct {
	State channel.State
}

// tickMsg redraws the header so the "last update" age keeps moving.
type tickMsg time.Time

// Model is the bubbletea model for the whole dashboard.
type Model struct {
	keys       KeyMap
	dispatcher Dispatcher
	clock      clock.Clock
	logs       *logger.LogBuffer
	staleAfter time.Duration
	help       help.Model

	widgets []PrinterWidget
	form    AddPrinterForm
	// focus indexes widgets; len(widgets) is the form.
	focus int

	state      channel.State
	lastUpdate time.Time
	lastError  string
	width      int
	height     int
}

// Option configures a Model.
type Option func(*Model)

// WithClock sets the clock used for the stale indicator.
func WithClock(c clock.Clock) Option {
	return func(m *Model) { m.clock = c }
}

// WithLogBuffer sets where the footer reads the latest log entry from.
func WithLogBuffer(b *logger.LogBuffer) Option {
	return func(m *Model) { m.logs = b }
}

// WithStaleAfter sets how old the last snapshot may get before the
// header flags it.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Model) { m.staleAfter = d }
}

// WithChannelState sets the state shown before the first transition.
func WithChannelState(s channel.State) Option {
	return func(m *Model) { m.state = s }
}

// WithKeyMap replaces DefaultKeyMap.
func WithKeyMap(k KeyMap) Option {
	return func(m *Model) { m.keys = k }
}

// New returns an empty dashboard. Until the first snapshot arrives only
// the add-printer form is shown, and it has focus.
func New(d Dispatcher, opts ...Option) Model {
	m := Model{
		keys:       DefaultKeyMap,
		dispatcher: d,
		clock:      clock.Real(),
		logs:       logger.GetLogBuffer(),
		staleAfter: defaultStaleAfter,
		help:       help.New(),
		form:       NewAddPrinterForm(),
		state:      channel.StateConnecting,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.form = m.form.Focus()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Widgets returns the printer panels in snapshot order.
func (m Model) Widgets() []PrinterWidget { return m.widgets }

// Widget returns the panel for name.
func (m Model) Widget(name string) (PrinterWidget, bool) {
	for _, w := range m.widgets {
		if w.Name() == name {
			return w, true
		}
	}
	return PrinterWidget{}, false
}

// Form returns the add-printer form.
func (m Model) Form() AddPrinterForm { return m.form }

// FocusedName returns the printer whose panel has focus, or "" when the
// form has it.
func (m Model) FocusedName() string {
	if m.focus < len(m.widgets) {
		return m.widgets[m.focus].Name()
	}
	return ""
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case SnapshotMsg:
		m = m.reconcile(msg.Snapshot)
		m.lastUpdate = msg.At
		return m, nil

	case ChannelStateMsg:
		m.state = msg.State
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.form.Focused() {
		var cmd tea.Cmd
		m.form, cmd, _ = m.form.Update(msg, m.keys, m.dispatcher)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextPanel):
		return m.setFocus(m.focus + 1), nil
	case key.Matches(msg, m.keys.PrevPanel):
		return m.setFocus(m.focus - 1), nil
	}

	if m.form.Focused() {
		var cmd tea.Cmd
		var err error
		m.form, cmd, err = m.form.Update(msg, m.keys, m.dispatcher)
		m.lastError = errorText(err)
		return m, cmd
	}

	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.focus < len(m.widgets) {
		var err error
		m.widgets[m.focus], err = m.widgets[m.focus].Update(msg, m.keys, m.dispatcher)
		m.lastError = errorText(err)
	}
	return m, nil
}

// setFocus moves focus to panel i, wrapping around the form.
func (m Model) setFocus(i int) Model {
	panels := len(m.widgets) + 1
	i = ((i % panels) + panels) % panels
	m.focus = i
	if i == len(m.widgets) {
		m.form = m.form.Focus()
	} else {
		m.form = m.form.Blur()
	}
	return m
}

// reconcile replaces the panels with one per printer in snapshot. A
// printer whose name already had a panel keeps that panel's selection;
// new names get fresh panels and missing names are dropped. When a name
// repeats, only its first panel inherits state.
func (m Model) reconcile(snapshot protocol.FleetSnapshot) Model {
	focusedName, formFocused := m.FocusedName(), m.form.Focused()

	existing := make(map[string]PrinterWidget, len(m.widgets))
	for _, w := range m.widgets {
		if _, dup := existing[w.Name()]; !dup {
			existing[w.Name()] = w
		}
	}

	widgets := make([]PrinterWidget, 0, len(snapshot))
	for _, state := range snapshot {
		if w, ok := existing[state.PrinterName]; ok {
			widgets = append(widgets, w.WithState(state))
			delete(existing, state.PrinterName)
			continue
		}
		widgets = append(widgets, NewPrinterWidget(state))
	}
	m.widgets = widgets

	focus := len(widgets)
	if !formFocused {
		for i, w := range widgets {
			if w.Name() == focusedName {
				focus = i
				break
			}
		}
		if focus == len(widgets) && m.focus < len(widgets) {
			focus = m.focus
		}
	}
	return m.setFocus(focus)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (m Model) View() string {
	sections := []string{m.headerView(), m.panelsView(), m.footerView()}
	return strings.Join(sections, "\n")
}

// HeaderText is the plain header line: channel state and snapshot age.
func (m Model) HeaderText() string {
	return m.header(m.state.String())
}

func (m Model) header(stateText string) string {
	return fmt.Sprintf("Printer fleet · %d printers · channel %s · %s",
		len(m.widgets), stateText, m.freshness())
}

func (m Model) freshness() string {
	if m.lastUpdate.IsZero() {
		return "waiting for first update"
	}
	return "last update " + humanize.RelTime(m.lastUpdate, m.clock.Now(), "ago", "from now")
}

// Stale reports whether the last snapshot is older than the threshold.
func (m Model) Stale() bool {
	if m.lastUpdate.IsZero() || m.staleAfter <= 0 {
		return false
	}
	return m.clock.Now().Sub(m.lastUpdate) > m.staleAfter
}

func (m Model) headerView() string {
	stateText := m.state.String()
	if style, ok := stateStyles[stateText]; ok {
		stateText = style.Render(stateText)
	}
	line := m.header(stateText)
	if m.Stale() {
		line += " " + warnStyle.Render("STALE")
	}
	return headerStyle.Render(line)
}

func (m Model) panelsView() string {
	panels := make([]string, 0, len(m.widgets)+1)
	for i, w := range m.widgets {
		panels = append(panels, w.View(i == m.focus))
	}
	panels = append(panels, m.form.View())

	perRow := 3
	if m.width > 0 {
		perRow = max(1, m.width/panelOuterWidth)
	}

	var rows []string
	for start := 0; start < len(panels); start += perRow {
		end := min(start+perRow, len(panels))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, spaced(panels[start:end])...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func spaced(panels []string) []string {
	out := make([]string, 0, 2*len(panels))
	for i, p := range panels {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, p)
	}
	return out
}

func (m Model) footerView() string {
	var status string
	switch {
	case m.lastError != "":
		status = errorStyle.Render(m.lastError)
	case m.logs != nil:
		if entry, ok := m.logs.Latest(); ok {
			status = dimStyle.Render(fmt.Sprintf("%s [%s] %s",
				entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message))
		}
	}

	bindings := m.keys.printerHelp()
	if m.form.Focused() {
		bindings = m.keys.formHelp()
	}
	return strings.TrimRight(status+"\n"+m.help.ShortHelpView(bindings), "\n")
}
