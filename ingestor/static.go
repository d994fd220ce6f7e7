package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MetropolisTHEMA/metroviz/network"
)

// Files is an offline Source: field files on disk, falling back to the
// network's own attributes for static fields without a file.
type Files struct {
	Paths   map[string]string // field key to JSON file
	Network *network.Network
}

// Fetch implements Source
func (f *Files) Fetch(ctx context.Context, q Query) (FieldData, error) {
	if err := ctx.Err(); err != nil {
		return FieldData{}, err
	}
	if path, ok := f.Paths[q.Field]; ok {
		data, err := LoadFieldFile(path, q.Field, q.Source)
		if err != nil {
			return FieldData{}, err
		}
		return conform(q, data)
	}
	if !q.TimeIndexed && f.Network != nil {
		values, err := f.Network.Attribute(q.Source)
		if err == nil {
			return FieldData{Field: q.Field, Static: values}, nil
		}
	}
	return FieldData{}, fmt.Errorf("%s: no data file: %w", q.Field, ErrFetchFailure)
}

// LoadFieldFile reads one field file in any accepted shape
func LoadFieldFile(path, field, valueKey string) (FieldData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FieldData{}, fmt.Errorf("%s: %w: %w", field, ErrFetchFailure, err)
	}
	return Normalize(field, valueKey, raw)
}

// LoadNetworkFile reads a GeoJSON feature collection of edges
func LoadNetworkFile(path string) (*network.Network, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}
	return ParseFeatureCollection(raw)
}

// ParseEdgeRecords decodes the edge listing
func ParseEdgeRecords(raw []byte) ([]network.EdgeRecord, error) {
	var records []network.EdgeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode edge listing: %w", err)
	}
	return records, nil
}
