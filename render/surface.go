// Package render defines the drawing surface the styling engine paints onto.
//
// A Surface owns feature geometry, hit-testing and layout. The engine only
// ever pushes colors, legend pieces and the time label through it.
package render

import "github.com/MetropolisTHEMA/metroviz/scale"

// Tick is one labelled mark on the legend axis.
// Position is measured from the top of the strip: 0 is the domain max, 1 the domain min.
type Tick struct {
	Value    float64
	Label    string
	Position float64
}

// Surface is the rendering collaborator
type Surface interface {
	SetFeatureColor(edgeID string, c scale.RGB)
	RemoveLegend()
	// DrawLegendBand draws one gradient segment; position follows Tick.Position
	DrawLegendBand(c scale.RGB, position float64)
	// DrawLegendAxis completes the legend started by the preceding bands
	DrawLegendAxis(ticks []Tick)
	ShowLegendContainer()
	SetTimeLabel(text string)
}
