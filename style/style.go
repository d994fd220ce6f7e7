// Package style paints network edges from attribute values.
package style

import (
	"fmt"
	"math"

	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

// DefaultHighlight is the hover color
var DefaultHighlight = scale.MustParseHex("#00ffff")

// Mode is what currently drives edge colors
type Mode int

const (
	ModeDefault Mode = iota
	ModeField
)

func (m Mode) String() string {
	if m == ModeField {
		return "field"
	}
	return "default"
}

// Mapping is how one field turns values into colors
type Mapping struct {
	Color1 scale.RGB
	Color2 scale.RGB
	Policy scale.Policy
}

// Result describes one paint pass
type Result struct {
	Scale   *scale.Scale
	Painted int
	Missing []string // edges painted with their default color
}

// Applicator paints every edge of a network onto a surface.
// Hover handling is installed once; painting only swaps the color function.
type Applicator struct {
	surface   render.Surface
	legend    *legend.Renderer
	network   *network.Network
	highlight scale.RGB

	mode    Mode
	current *scale.Scale
	values  map[string]float64
	hovered string
}

func New(surface render.Surface, lr *legend.Renderer, n *network.Network, highlight scale.RGB) *Applicator {
	return &Applicator{
		surface:   surface,
		legend:    lr,
		network:   n,
		highlight: highlight,
	}
}

// Mode returns the active color mode
func (a *Applicator) Mode() Mode {
	return a.mode
}

// Scale returns the scale of the last field paint, nil in default mode
func (a *Applicator) Scale() *scale.Scale {
	return a.current
}

// ApplyStatic colors edges by a static field over its global domain.
// Without any usable value the network falls back to default styling.
func (a *Applicator) ApplyStatic(m Mapping, values map[string]float64) (Result, error) {
	d, err := scale.StaticDomain(values)
	if err != nil {
		a.ApplyDefault()
		return Result{}, fmt.Errorf("apply static field: %w", err)
	}
	return a.apply(scale.Build(d, m.Color1, m.Color2), values), nil
}

// ApplyStep colors edges by step i of a series, using the mapping's domain policy
func (a *Applicator) ApplyStep(m Mapping, series map[string][]float64, i int) (Result, error) {
	d, err := scale.SeriesDomain(series, m.Policy, i)
	if err != nil {
		a.ApplyDefault()
		return Result{}, fmt.Errorf("apply step %d: %w", i, err)
	}
	values := make(map[string]float64, len(series))
	for id, s := range series {
		if i >= 0 && i < len(s) && !math.IsNaN(s[i]) {
			values[id] = s[i]
		}
	}
	return a.apply(scale.Build(d, m.Color1, m.Color2), values), nil
}

// ApplyDefault restores every edge's own color and removes the legend
func (a *Applicator) ApplyDefault() {
	a.mode = ModeDefault
	a.current = nil
	a.values = nil
	for _, e := range a.network.Edges() {
		a.paint(e)
	}
	a.legend.Clear()
}

func (a *Applicator) apply(s *scale.Scale, values map[string]float64) Result {
	a.mode = ModeField
	a.current = s
	a.values = values

	res := Result{Scale: s}
	a.legend.Draw(s)
	for _, e := range a.network.Edges() {
		if _, ok := values[e.ID]; !ok {
			res.Missing = append(res.Missing, e.ID)
		}
		a.paint(e)
		res.Painted++
	}
	return res
}

// ColorOf returns the color the current mode assigns to an edge, ignoring hover
func (a *Applicator) ColorOf(e *network.Edge) scale.RGB {
	if a.mode == ModeField && a.current != nil {
		if v, ok := a.values[e.ID]; ok {
			return a.current.At(v)
		}
	}
	return e.DefaultColor
}

// Value returns the current value of an edge in field mode
func (a *Applicator) Value(id string) (float64, bool) {
	v, ok := a.values[id]
	return v, ok
}

func (a *Applicator) paint(e *network.Edge) {
	if e.ID == a.hovered {
		a.surface.SetFeatureColor(e.ID, a.highlight)
		return
	}
	a.surface.SetFeatureColor(e.ID, a.ColorOf(e))
}

// HoverEnter highlights an edge until HoverExit
func (a *Applicator) HoverEnter(id string) {
	if _, ok := a.network.Edge(id); !ok {
		return
	}
	if a.hovered != "" && a.hovered != id {
		a.HoverExit(a.hovered)
	}
	a.hovered = id
	a.surface.SetFeatureColor(id, a.highlight)
}

// HoverExit restores the current mode's color of an edge
func (a *Applicator) HoverExit(id string) {
	e, ok := a.network.Edge(id)
	if !ok {
		return
	}
	if a.hovered == id {
		a.hovered = ""
	}
	a.surface.SetFeatureColor(id, a.ColorOf(e))
}

// Hovered returns the highlighted edge, if any
func (a *Applicator) Hovered() string {
	return a.hovered
}
