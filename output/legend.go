package output

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/charmbracelet/lipgloss"
)

const DefaultLegendWidth = 60

// shades used for the uncolored strip, low to high
var plainRamp = []rune(" .:-=+*#%@")

var (
	legendTitleStyle = lipgloss.NewStyle().Bold(true)
	legendAxisStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})
	legendBoxStyle   = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 1)
)

// RenderLegend draws the scale as a horizontal strip, low values on the left,
// with the tick labels underneath
func RenderLegend(s *scale.Scale, title string, width int, plain bool) string {
	if width < 2 {
		width = DefaultLegendWidth
	}
	d := s.Domain()

	var strip strings.Builder
	for i := 0; i < width; i++ {
		v := d.Min + d.Span()*float64(i)/float64(width-1)
		if plain {
			idx := int(math.Round(s.Fraction(v) * float64(len(plainRamp)-1)))
			strip.WriteRune(plainRamp[idx])
			continue
		}
		cell := lipgloss.NewStyle().Background(lipgloss.Color(s.At(v).Hex()))
		strip.WriteString(cell.Render(" "))
	}

	axis := legend.AxisLine(legend.Ticks(d, legend.DefaultTicks), width)
	if plain {
		return strings.Join([]string{title, strip.String(), axis}, "\n")
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		legendTitleStyle.Render(title),
		strip.String(),
		legendAxisStyle.Render(axis),
	)
	return legendBoxStyle.Render(body)
}

// PrintLegend writes RenderLegend's output followed by a newline
func PrintLegend(w io.Writer, s *scale.Scale, title string, width int, plain bool) {
	fmt.Fprintln(w, RenderLegend(s, title, width, plain))
}
