package dashboard

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

const (
	fieldName = iota
	fieldIP
)

// AddPrinterForm collects a name and IP address and dispatches one add
// command per submit. The inputs are cleared as soon as the command is
// handed off, not when the backend confirms it.
type AddPrinterForm struct {
	name    textinput.Model
	ip      textinput.Model
	field   int
	focused bool
}

func NewAddPrinterForm() AddPrinterForm {
	name := textinput.New()
	name.Placeholder = "Printer Name"
	name.Prompt = ""
	name.CharLimit = 64
	name.Width = panelWidth - 14

	ip := textinput.New()
	ip.Placeholder = "192.168.1.20"
	ip.Prompt = ""
	ip.CharLimit = 15
	ip.Width = 15

	return AddPrinterForm{name: name, ip: ip}
}

// Values returns the current input text.
func (f AddPrinterForm) Values() (name, ip string) {
	return f.name.Value(), f.ip.Value()
}

// SetValues fills both inputs.
func (f AddPrinterForm) SetValues(name, ip string) AddPrinterForm {
	f.name.SetValue(name)
	f.ip.SetValue(ip)
	return f
}

// CanSubmit reports whether the inputs pass local validation: a
// non-empty name and a dotted-quad IPv4 address.
func (f AddPrinterForm) CanSubmit() bool {
	name, ip := f.trimmed()
	return name != "" && protocol.ValidIPv4(ip)
}

func (f AddPrinterForm) trimmed() (string, string) {
	return strings.TrimSpace(f.name.Value()), strings.TrimSpace(f.ip.Value())
}

// Submit dispatches the add command and clears both inputs. Invalid
// input dispatches nothing and leaves the form as it is.
func (f AddPrinterForm) Submit(d Dispatcher) (AddPrinterForm, bool, error) {
	if !f.CanSubmit() {
		return f, false, nil
	}
	name, ip := f.trimmed()
	err := d.Add(name, ip)
	f.name.Reset()
	f.ip.Reset()
	f = f.focusField(fieldName)
	return f, true, err
}

// Focus gives the form keyboard focus, starting at the name field.
func (f AddPrinterForm) Focus() AddPrinterForm {
	f.focused = true
	return f.focusField(f.field)
}

func (f AddPrinterForm) Blur() AddPrinterForm {
	f.focused = false
	f.name.Blur()
	f.ip.Blur()
	return f
}

func (f AddPrinterForm) Focused() bool { return f.focused }

func (f AddPrinterForm) focusField(field int) AddPrinterForm {
	f.field = field
	if !f.focused {
		return f
	}
	if field == fieldName {
		f.ip.Blur()
		f.name.Focus()
	} else {
		f.name.Blur()
		f.ip.Focus()
	}
	return f
}

// Update handles input while the form has focus. Enter on the name field
// moves to the IP field; enter on the IP field submits.
func (f AddPrinterForm) Update(msg tea.Msg, keys KeyMap, d Dispatcher) (AddPrinterForm, tea.Cmd, error) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.Submit):
			if f.field == fieldName {
				return f.focusField(fieldIP), nil, nil
			}
			next, _, err := f.Submit(d)
			return next, nil, err
		case keyMsg.Type == tea.KeyUp || keyMsg.Type == tea.KeyDown:
			return f.focusField(1 - f.field), nil, nil
		}
	}

	var cmd tea.Cmd
	if f.field == fieldName {
		f.name, cmd = f.name.Update(msg)
	} else {
		f.ip, cmd = f.ip.Update(msg)
	}
	return f, cmd, nil
}

func (f AddPrinterForm) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Add new printer"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Printer Name "))
	b.WriteString(f.name.View())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("IP Address   "))
	b.WriteString(f.ip.View())
	b.WriteString("\n\n")
	if f.CanSubmit() {
		b.WriteString("[Enter] Add Printer")
	} else {
		b.WriteString(dimStyle.Render("[Enter] Add Printer (incomplete)"))
	}

	style := panelStyle
	if f.focused {
		style = focusedPanelStyle
	}
	return style.Render(b.String())
}
