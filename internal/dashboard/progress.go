package dashboard

import (
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

// ProgressView is what the progress sub-widget shows for one value.
type ProgressView struct {
	// Bar is set for numeric progress.
	Bar bool
	// Fraction is the bar fill. Only the drawing is clamped to [0, 1].
	Fraction float64
	// Width is the proportional width as text, e.g. "50%". It is not
	// clamped, so 150 gives "150%".
	Width string
	// Text is the visible label: the percent or the raw status.
	Text string
}

// RenderProgress maps a Progress value onto its view. Percent values get
// a bar; status text is shown as is with no bar.
func RenderProgress(p protocol.Progress) ProgressView {
	v, ok := p.Percent()
	if !ok {
		return ProgressView{Text: p.Status()}
	}
	label := protocol.FormatPercent(v)
	return ProgressView{
		Bar:      true,
		Fraction: clampFraction(v / 100),
		Width:    label,
		Text:     label,
	}
}

// Render draws the view with bar for numeric values.
func (v ProgressView) Render(bar progress.Model) string {
	if !v.Bar {
		return statusTextStyle.Render(v.Text)
	}
	return bar.ViewAs(v.Fraction) + " " + v.Text
}

func newProgressBar(width int) progress.Model {
	bar := progress.New(
		progress.WithScaledGradient("#7CFC00", "#2E8B57"),
		progress.WithoutPercentage(),
	)
	bar.Width = width
	return bar
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
