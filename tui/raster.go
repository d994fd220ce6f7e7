package tui

import (
	"math"
	"sync"

	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/pools"
	"github.com/MetropolisTHEMA/metroviz/scale"
	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
)

// Raster maps terminal cells to the edge drawn in them
type Raster struct {
	Width, Height int
	cells         []string
}

// At returns the edge id drawn at column x, row y, or ""
func (r *Raster) At(x, y int) string {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return ""
	}
	return r.cells[y*r.Width+x]
}

// NewRaster projects every edge geometry onto a width x height grid, north up.
// Edges are drawn in id order, so later edges win shared cells.
func NewRaster(n *network.Network, width, height int) *Raster {
	r := &Raster{Width: width, Height: height}
	if width <= 0 || height <= 0 {
		r.Width, r.Height = 0, 0
		return r
	}
	r.cells = make([]string, width*height)

	ids := n.IDs()
	geoms := make([]orb.MultiLineString, len(ids))
	var all orb.MultiLineString
	for i, id := range ids {
		e, _ := n.Edge(id)
		geoms[i] = lines(e.Geometry)
		all = append(all, geoms[i]...)
	}
	if len(all) == 0 {
		return r
	}
	b := all.Bound()

	project := func(p orb.Point) (int, int) {
		x, y := 0.0, 0.0
		if span := b.Right() - b.Left(); span > 0 {
			x = (p.X() - b.Left()) / span * float64(width-1)
		}
		if span := b.Top() - b.Bottom(); span > 0 {
			y = (b.Top() - p.Y()) / span * float64(height-1)
		}
		return int(math.Round(x)), int(math.Round(y))
	}

	for i, id := range ids {
		for _, line := range geoms[i] {
			for j := 0; j+1 < len(line); j++ {
				x0, y0 := project(line[j])
				x1, y1 := project(line[j+1])
				r.segment(id, x0, y0, x1, y1)
			}
			if len(line) == 1 {
				x, y := project(line[0])
				r.set(id, x, y)
			}
		}
	}
	return r
}

// lines converts a line geometry to orb, dropping malformed positions and empty lines
func lines(g *geojson.Geometry) orb.MultiLineString {
	if g == nil {
		return nil
	}
	var raw [][][]float64
	switch g.Type {
	case geojson.GeometryLineString:
		raw = [][][]float64{g.LineString}
	case geojson.GeometryMultiLineString:
		raw = g.MultiLineString
	default:
		return nil
	}

	var mls orb.MultiLineString
	for _, positions := range raw {
		ls := make(orb.LineString, 0, len(positions))
		for _, p := range positions {
			if len(p) >= 2 {
				ls = append(ls, orb.Point{p[0], p[1]})
			}
		}
		if len(ls) > 0 {
			mls = append(mls, ls)
		}
	}
	return mls
}

func (r *Raster) set(id string, x, y int) {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return
	}
	r.cells[y*r.Width+x] = id
}

// segment draws a Bresenham line
func (r *Raster) segment(id string, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		r.set(id, x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// textPool holds the buffers map and legend text is assembled in
var textPool = pools.NewBufferPool(8 << 10)

// Text renders the raster as tview color-tagged text
func (r *Raster) Text(colorOf func(id string) scale.RGB) string {
	b := pools.GetBufferFromPool(textPool)
	defer pools.ReturnBufferToPool(textPool, b)
	for y := 0; y < r.Height; y++ {
		current := ""
		for x := 0; x < r.Width; x++ {
			id := r.At(x, y)
			if id == "" {
				b.WriteByte(' ')
				continue
			}
			hex := colorOf(id).Hex()
			if hex != current {
				b.WriteString("[" + hex + "]")
				current = hex
			}
			b.WriteString("█")
		}
		if current != "" {
			b.WriteString("[-]")
		}
		if y < r.Height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// RasterCache keeps one raster per grid size; resizing the terminal reuses earlier projections
type RasterCache struct {
	network *network.Network
	mu      sync.Mutex
	rasters map[[2]int]*Raster
	hits    int64
	misses  int64
}

func NewRasterCache(n *network.Network) *RasterCache {
	return &RasterCache{network: n, rasters: make(map[[2]int]*Raster)}
}

// Get returns the raster for a grid size, projecting it on first use
func (c *RasterCache) Get(width, height int) *Raster {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := [2]int{width, height}
	if r, ok := c.rasters[key]; ok {
		c.hits++
		return r
	}
	c.misses++
	r := NewRaster(c.network, width, height)
	c.rasters[key] = r
	return r
}

// Stats returns cache hits and misses
func (c *RasterCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
