package ingestor

import (
	"fmt"
	"math"

	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/scale"
	geojson "github.com/paulmach/go.geojson"
)

// ParseFeatureCollection builds the edge set from a GeoJSON feature collection.
// Edge ids come from the edge_id property, or the feature id when absent.
func ParseFeatureCollection(raw []byte) (*network.Network, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	edges := make([]*network.Edge, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := network.FormatID(f.Properties["edge_id"])
		if id == "" {
			id = network.FormatID(f.ID)
		}
		if id == "" {
			return nil, fmt.Errorf("feature %d: no edge id", i)
		}

		edge := &network.Edge{
			ID:           id,
			Name:         f.PropertyMustString("name", ""),
			Lanes:        numberProperty(f, "lanes"),
			Length:       numberProperty(f, "length"),
			Speed:        numberProperty(f, "speed"),
			RoadType:     network.FormatID(f.Properties["road_type"]),
			DefaultColor: network.FallbackColor,
			Geometry:     f.Geometry,
		}
		if c, err := scale.ParseHex(f.PropertyMustString("color", "")); err == nil {
			edge.DefaultColor = c
		}
		edges = append(edges, edge)
	}
	return network.New(edges)
}

func numberProperty(f *geojson.Feature, key string) float64 {
	v, err := ParseValue(f.Properties[key])
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
