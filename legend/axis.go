package legend

import (
	"math"
	"strings"

	"github.com/MetropolisTHEMA/metroviz/render"
)

type axisLabel struct {
	x    int
	text []rune
}

// AxisLine lays tick labels out under a horizontal strip of the given width,
// low values on the left. The lowest and highest ticks are always labelled
// when they fit; inner labels that would overlap a placed one are skipped.
func AxisLine(ticks []render.Tick, width int) string {
	if width <= 0 {
		return ""
	}

	// ticks come max first
	labels := make([]axisLabel, 0, len(ticks))
	for i := len(ticks) - 1; i >= 0; i-- {
		t := ticks[i]
		text := []rune(t.Label)
		if len(text) > width {
			continue
		}
		x := int(math.Round((1-t.Position)*float64(width-1))) - len(text)/2
		if x < 0 {
			x = 0
		}
		if x+len(text) > width {
			x = width - len(text)
		}
		labels = append(labels, axisLabel{x: x, text: text})
	}
	if len(labels) == 0 {
		return ""
	}

	line := []rune(strings.Repeat(" ", width))
	limit := width
	if len(labels) > 1 {
		first, last := labels[0], labels[len(labels)-1]
		if last.x > first.x+len(first.text) {
			copy(line[last.x:], last.text)
			limit = last.x - 1
		}
		labels = labels[:len(labels)-1]
	}

	next := 0
	for _, l := range labels {
		if l.x < next || l.x+len(l.text) > limit {
			continue
		}
		copy(line[l.x:], l.text)
		next = l.x + len(l.text) + 1
	}
	return strings.TrimRight(string(line), " ")
}
