package dashboard

import "github.com/charmbracelet/lipgloss"

const (
	panelWidth  = 34
	barWidth    = 20
	maxFileRows = 10
)

// panelOuterWidth is a rendered panel's width including border, padding
// and the gap to its neighbour.
const panelOuterWidth = panelWidth + 4

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1).
	Width(panelWidth)

var focusedPanelStyle = panelStyle.BorderForeground(lipgloss.Color("214"))

var selectedFileStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("0")).
	Background(lipgloss.Color("150"))

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	labelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	statusTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("222"))
	headerStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var stateStyles = map[string]lipgloss.Style{
	"open":       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	"connecting": lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	"closed":     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	"errored":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}
