package dashboard

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard key bindings.
type KeyMap struct {
	// Focus moves between printer panels and the add-printer form.
	NextPanel key.Binding
	PrevPanel key.Binding

	// File selection inside a printer panel, or field switching inside
	// the form.
	Up    key.Binding
	Down  key.Binding
	Clear key.Binding

	// Printer controls.
	Start  key.Binding
	Pause  key.Binding
	Stop   key.Binding
	Resume key.Binding
	Remove key.Binding

	Submit key.Binding
	Quit   key.Binding
	// ForceQuit also works while typing into the form.
	ForceQuit key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	NextPanel: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "next panel"),
	),
	PrevPanel: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("S-Tab", "prev panel"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "prev file"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "next file"),
	),
	Clear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "clear selection"),
	),
	Start: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "start print"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Resume: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resume"),
	),
	Remove: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "remove printer"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "add printer"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}

// printerHelp is the help line while a printer panel has focus.
func (k KeyMap) printerHelp() []key.Binding {
	return []key.Binding{k.Down, k.Start, k.Pause, k.Stop, k.Resume, k.Remove, k.NextPanel, k.Quit}
}

// formHelp is the help line while the add-printer form has focus.
func (k KeyMap) formHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Down, k.NextPanel, k.ForceQuit}
}
