package tui

import (
	"math"

	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/pools"
	"github.com/MetropolisTHEMA/metroviz/render"
)

// legendText renders a drawn legend as a horizontal color strip with its axis
func legendText(l render.Legend, width int) string {
	if width <= 1 || len(l.Bands) == 0 {
		return ""
	}
	b := pools.GetBufferFromPool(textPool)
	defer pools.ReturnBufferToPool(textPool, b)
	current := ""
	// bands are drawn from the domain min to the max
	last := len(l.Bands) - 1
	for x := 0; x < width; x++ {
		i := int(math.Round(float64(x) * float64(last) / float64(width-1)))
		hex := l.Bands[i].Color.Hex()
		if hex != current {
			b.WriteString("[" + hex + "]")
			current = hex
		}
		b.WriteString("█")
	}
	b.WriteString("[-]\n")
	b.WriteString(legend.AxisLine(l.Ticks, width))
	return b.String()
}
