package engine

import (
	"errors"
	"fmt"

	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/MetropolisTHEMA/metroviz/style"
)

// DefaultKey selects the network's own colors
const DefaultKey = "default"

var ErrUnknownField = errors.New("unknown field")

// Kind tells static attributes from time-indexed outputs
type Kind int

const (
	Static Kind = iota
	TimeIndexed
)

func (k Kind) String() string {
	if k == TimeIndexed {
		return "time-indexed"
	}
	return "static"
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "static":
		return Static, nil
	case "time-indexed", "timeindexed", "series":
		return TimeIndexed, nil
	default:
		return Static, fmt.Errorf("unknown field kind %q", s)
	}
}

// Descriptor is everything the engine knows about one selectable field
type Descriptor struct {
	Key    string
	Label  string
	Source string // attribute name on the server
	Kind   Kind
	Policy scale.Policy
	Color1 scale.RGB
	Color2 scale.RGB
	Shape  ingestor.Shape
}

// Query returns the data request for this field
func (d *Descriptor) Query() ingestor.Query {
	return ingestor.Query{
		Field:       d.Key,
		Source:      d.Source,
		TimeIndexed: d.Kind == TimeIndexed,
		Shape:       d.Shape,
	}
}

// Mapping returns the current value-to-color mapping
func (d *Descriptor) Mapping() style.Mapping {
	return style.Mapping{Color1: d.Color1, Color2: d.Color2, Policy: d.Policy}
}

// Registry holds descriptors in display order
type Registry struct {
	order []string
	byKey map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Descriptor)}
}

// DefaultRegistry lists the static edge attributes and the simulation outputs
func DefaultRegistry() *Registry {
	r := NewRegistry()
	yellow := scale.MustParseHex("#fff500")
	red := scale.MustParseHex("#ff0000")
	navy := scale.MustParseHex("#000066")
	r.Add(Descriptor{Key: "lanes", Label: "Lanes", Source: "lanes", Kind: Static, Color1: yellow, Color2: red})
	r.Add(Descriptor{Key: "length", Label: "Length", Source: "length", Kind: Static, Color1: yellow, Color2: scale.MustParseHex("#00ff00")})
	r.Add(Descriptor{Key: "speed", Label: "Speed", Source: "speed", Kind: Static, Color1: yellow, Color2: navy})
	r.Add(Descriptor{Key: "speed_output", Label: "Speed (simulated)", Source: "speed", Kind: TimeIndexed,
		Color1: scale.MustParseHex("#33f6ff"), Color2: scale.MustParseHex("#4933ff")})
	r.Add(Descriptor{Key: "congestion", Label: "Congestion", Source: "congestion", Kind: TimeIndexed, Color1: yellow, Color2: red})
	r.Add(Descriptor{Key: "travel_time", Label: "Travel time", Source: "travel_time", Kind: TimeIndexed, Color1: yellow, Color2: navy})
	return r
}

// Add inserts d, replacing an existing descriptor with the same key in place
func (r *Registry) Add(d Descriptor) error {
	if d.Key == "" || d.Key == DefaultKey {
		return fmt.Errorf("invalid field key %q", d.Key)
	}
	if d.Source == "" {
		d.Source = d.Key
	}
	if d.Label == "" {
		d.Label = d.Key
	}
	if _, ok := r.byKey[d.Key]; !ok {
		r.order = append(r.order, d.Key)
	}
	r.byKey[d.Key] = &d
	return nil
}

// Get returns the live descriptor for key
func (r *Registry) Get(key string) (*Descriptor, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// Keys returns the field keys in display order
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// Descriptors returns copies in display order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.byKey[k])
	}
	return out
}
