// Package legend draws the gradient strip and axis that explain the active color scale.
package legend

import (
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

const (
	DefaultBands = 400
	MinBands     = 200
	MaxBands     = 400
	DefaultTicks = 10
)

// Renderer owns the single legend element on a surface
type Renderer struct {
	surface render.Surface
	bands   int
	ticks   int
	visible bool
}

// NewRenderer creates a renderer sampling the scale at the given number of bands.
// Out of range band counts fall back to DefaultBands.
func NewRenderer(surface render.Surface, bands int) *Renderer {
	if bands < MinBands || bands > MaxBands {
		bands = DefaultBands
	}
	return &Renderer{
		surface: surface,
		bands:   bands,
		ticks:   DefaultTicks,
	}
}

// Bands returns the number of regular samples taken per draw (the max endpoint is drawn in addition)
func (r *Renderer) Bands() int {
	return r.bands
}

// Draw replaces any previous legend with one describing s
func (r *Renderer) Draw(s *scale.Scale) {
	r.surface.RemoveLegend()
	if !r.visible {
		r.surface.ShowLegendContainer()
		r.visible = true
	}

	d := s.Domain()
	total := r.bands + 1
	for i := 0; i <= r.bands; i++ {
		v := d.Min + d.Span()*float64(i)/float64(r.bands)
		if i == r.bands {
			v = d.Max
		}
		// band i sits (bands - i) slots below the top
		pos := float64(r.bands-i) / float64(total)
		r.surface.DrawLegendBand(s.At(v), pos)
	}

	r.surface.DrawLegendAxis(Ticks(d, r.ticks))
}

// Clear removes the legend, if any
func (r *Renderer) Clear() {
	r.surface.RemoveLegend()
}
