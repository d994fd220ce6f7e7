// Package network holds the immutable edge set of a road network.
package network

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/MetropolisTHEMA/metroviz/scale"
	geojson "github.com/paulmach/go.geojson"
)

// FallbackColor paints edges whose feature carries no usable color
var FallbackColor = scale.MustParseHex("#3388ff")

// Edge is one road segment. Geometry is passed through untouched.
type Edge struct {
	ID           string
	Name         string
	Lanes        float64
	Length       float64
	Speed        float64
	RoadType     string
	DefaultColor scale.RGB
	Geometry     *geojson.Geometry
}

// EdgeRecord is one row of the network edge listing
type EdgeRecord struct {
	EdgeID   any     `json:"edge_id"`
	Name     string  `json:"name"`
	Lanes    float64 `json:"lanes"`
	Length   float64 `json:"length"`
	Speed    float64 `json:"speed"`
	RoadType any     `json:"road_type"`
}

// Network indexes edges by id and keeps their input order
type Network struct {
	edges []*Edge
	index map[string]*Edge
}

// New builds a network. Duplicate ids are rejected.
func New(edges []*Edge) (*Network, error) {
	n := &Network{
		edges: make([]*Edge, 0, len(edges)),
		index: make(map[string]*Edge, len(edges)),
	}
	for _, e := range edges {
		if e.ID == "" {
			return nil, fmt.Errorf("edge without id")
		}
		if _, dup := n.index[e.ID]; dup {
			return nil, fmt.Errorf("duplicate edge id %q", e.ID)
		}
		n.edges = append(n.edges, e)
		n.index[e.ID] = e
	}
	return n, nil
}

// Edges returns the edges in input order
func (n *Network) Edges() []*Edge {
	return n.edges
}

// Len returns the number of edges
func (n *Network) Len() int {
	return len(n.edges)
}

// Edge looks up an edge by id
func (n *Network) Edge(id string) (*Edge, bool) {
	e, ok := n.index[id]
	return e, ok
}

// IDs returns all edge ids sorted numerically when possible
func (n *Network) IDs() []string {
	ids := make([]string, 0, len(n.edges))
	for _, e := range n.edges {
		ids = append(ids, e.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	return ids
}

// Enrich copies static attributes from edge listing rows onto matching edges.
// It returns how many rows matched an edge.
func (n *Network) Enrich(records []EdgeRecord) int {
	matched := 0
	for _, r := range records {
		e, ok := n.index[FormatID(r.EdgeID)]
		if !ok {
			continue
		}
		if r.Name != "" {
			e.Name = r.Name
		}
		e.Lanes = r.Lanes
		e.Length = r.Length
		e.Speed = r.Speed
		if rt := FormatID(r.RoadType); rt != "" {
			e.RoadType = rt
		}
		matched++
	}
	return matched
}

// Attribute returns a static attribute of every edge: lanes, length or speed
func (n *Network) Attribute(name string) (map[string]float64, error) {
	out := make(map[string]float64, len(n.edges))
	for _, e := range n.edges {
		switch name {
		case "lanes":
			out[e.ID] = e.Lanes
		case "length":
			out[e.ID] = e.Length
		case "speed":
			out[e.ID] = e.Speed
		default:
			return nil, fmt.Errorf("unknown edge attribute %q", name)
		}
	}
	return out, nil
}

// Tooltip formats the hover text of an edge
func (e *Edge) Tooltip() string {
	var b strings.Builder
	name := e.Name
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(&b, "name: %s\n", name)
	fmt.Fprintf(&b, "id: %s\n", e.ID)
	fmt.Fprintf(&b, "lanes: %s\n", formatNumber(e.Lanes))
	fmt.Fprintf(&b, "speed: %s\n", formatNumber(e.Speed))
	fmt.Fprintf(&b, "length: %.2f", e.Length)
	return b.String()
}

// FormatID turns a decoded JSON id (number or string) into an edge id
func FormatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return formatNumber(id)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	if (errA == nil) != (errB == nil) {
		return errA == nil
	}
	return a < b
}
