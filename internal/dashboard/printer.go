package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

// Dispatcher is the command surface the widgets drive.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Add(name, ip string) error
	Remove(name string) error
	Pause(ip string) error
	Stop(ip string) error
	Resume(ip string) error
	Start(ip, file string) error
}

// PrinterWidget renders one PrinterState. Its only local state is the
// selected file, which survives snapshot updates for the same printer
// name and is lost when the widget is recreated.
type PrinterWidget struct {
	state    protocol.PrinterState
	selected int
	bar      progress.Model
}

// NewPrinterWidget returns a widget with no file selected.
func NewPrinterWidget(state protocol.PrinterState) PrinterWidget {
	return PrinterWidget{
		state:    state,
		selected: -1,
		bar:      newProgressBar(barWidth),
	}
}

// Name is the reconciliation key.
func (w PrinterWidget) Name() string { return w.state.PrinterName }

// Title is the panel heading.
func (w PrinterWidget) Title() string { return w.state.PrinterName }

func (w PrinterWidget) State() protocol.PrinterState { return w.state }

// Files returns the selectable options in snapshot order.
func (w PrinterWidget) Files() []string { return w.state.FilesAvailable }

// SelectedFile returns the chosen file, if any.
func (w PrinterWidget) SelectedFile() (string, bool) {
	if w.selected < 0 || w.selected >= len(w.state.FilesAvailable) {
		return "", false
	}
	return w.state.FilesAvailable[w.selected], true
}

// CanStart reports whether Start Print is enabled.
func (w PrinterWidget) CanStart() bool {
	_, ok := w.SelectedFile()
	return ok
}

// Progress returns the progress sub-widget's view.
func (w PrinterWidget) Progress() ProgressView {
	return RenderProgress(w.state.Progress)
}

// WithState swaps in new props for the same printer. The selection is
// kept when the selected file is still offered.
func (w PrinterWidget) WithState(state protocol.PrinterState) PrinterWidget {
	previous, had := w.SelectedFile()
	at := w.selected
	w.state = state
	w.selected = -1
	if !had {
		return w
	}
	if at < len(state.FilesAvailable) && state.FilesAvailable[at] == previous {
		w.selected = at
	} else {
		w.selected = indexOf(state.FilesAvailable, previous)
	}
	return w
}

// Select chooses the file at index i. Out of range clears the selection.
func (w PrinterWidget) Select(i int) PrinterWidget {
	if i < 0 || i >= len(w.state.FilesAvailable) {
		i = -1
	}
	w.selected = i
	return w
}

// Update handles a key while the widget has focus. Commands are
// dispatched as the key is handled; the widget never changes its own
// state in response, it waits for the next snapshot.
func (w PrinterWidget) Update(msg tea.KeyMsg, keys KeyMap, d Dispatcher) (PrinterWidget, error) {
	ip := w.state.IPAddress
	switch {
	case key.Matches(msg, keys.Down):
		if n := len(w.state.FilesAvailable); n > 0 && w.selected < n-1 {
			w.selected++
		}
	case key.Matches(msg, keys.Up):
		if w.selected > 0 {
			w.selected--
		}
	case key.Matches(msg, keys.Clear):
		w.selected = -1
	case key.Matches(msg, keys.Start):
		file, ok := w.SelectedFile()
		if !ok {
			return w, nil
		}
		return w, d.Start(ip, file)
	case key.Matches(msg, keys.Pause):
		return w, d.Pause(ip)
	case key.Matches(msg, keys.Stop):
		return w, d.Stop(ip)
	case key.Matches(msg, keys.Resume):
		return w, d.Resume(ip)
	case key.Matches(msg, keys.Remove):
		return w, d.Remove(w.state.PrinterName)
	}
	return w, nil
}

// View renders the panel.
func (w PrinterWidget) View(focused bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(truncate(w.Title(), panelWidth-4)))
	b.WriteString(dimStyle.Render("  [x]"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("IP Address:"), w.state.IPAddress)
	b.WriteString(dimStyle.Render("[p] Pause  [s] Stop  [r] Resume"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Files available on Printer"))
	b.WriteString("\n")
	files := w.state.FilesAvailable
	if len(files) == 0 {
		b.WriteString(dimStyle.Render("(none)"))
		b.WriteString("\n")
	}
	first, last := fileWindow(len(files), w.selected, maxFileRows)
	for i := first; i < last; i++ {
		line := truncate(files[i], panelWidth-4)
		if i == w.selected {
			b.WriteString(selectedFileStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if last < len(files) {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("  … %d more", len(files)-last)))
	}
	b.WriteString("\n")

	b.WriteString(w.Progress().Render(w.bar))
	b.WriteString("\n")
	if w.CanStart() {
		b.WriteString("[Enter] Start Print")
	} else {
		b.WriteString(dimStyle.Render("[Enter] Start Print (no file)"))
	}

	style := panelStyle
	if focused {
		style = focusedPanelStyle
	}
	return style.Render(b.String())
}

// fileWindow returns the visible slice bounds so the selection stays on
// screen.
func fileWindow(total, selected, rows int) (int, int) {
	if total <= rows {
		return 0, total
	}
	first := 0
	if selected >= rows {
		first = selected - rows + 1
	}
	return first, first + rows
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 1 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
