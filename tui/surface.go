package tui

import (
	"sync/atomic"

	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

// Surface records what the engine paints and asks the UI for a redraw.
// Bursts of changes coalesce into one redraw until Redrawn is called.
type Surface struct {
	*render.Memory
	pending atomic.Bool
	notify  func()
}

// NewSurface creates a surface that calls notify, from the engine's goroutine,
// when a redraw is due
func NewSurface(notify func()) *Surface {
	return &Surface{Memory: render.NewMemory(), notify: notify}
}

func (s *Surface) SetFeatureColor(edgeID string, c scale.RGB) {
	s.Memory.SetFeatureColor(edgeID, c)
	s.changed()
}

func (s *Surface) RemoveLegend() {
	s.Memory.RemoveLegend()
	s.changed()
}

func (s *Surface) DrawLegendAxis(ticks []render.Tick) {
	s.Memory.DrawLegendAxis(ticks)
	s.changed()
}

func (s *Surface) SetTimeLabel(text string) {
	s.Memory.SetTimeLabel(text)
	s.changed()
}

// Redrawn re-arms notification; the UI calls it before reading the surface
func (s *Surface) Redrawn() {
	s.pending.Store(false)
}

func (s *Surface) changed() {
	if s.notify == nil {
		return
	}
	if s.pending.CompareAndSwap(false, true) {
		s.notify()
	}
}

// Legend returns the last complete legend element, if one is shown
func (s *Surface) Legend() (render.Legend, bool) {
	legends := s.Memory.Legends()
	if len(legends) == 0 {
		return render.Legend{}, false
	}
	return legends[len(legends)-1], true
}
