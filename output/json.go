package output

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MetropolisTHEMA/metroviz/engine"
	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/version"
)

// Snapshot is the exported styling of one field, step by step
type Snapshot struct {
	Metadata Metadata  `json:"metadata"`
	Field    FieldInfo `json:"field"`
	Steps    []Step    `json:"steps"`
	Warnings []Warning `json:"warnings"`
	Errors   []Error   `json:"errors"`

	// Mutex for thread-safe warning/error appending
	mu sync.Mutex `json:"-"`
}

// Metadata contains information about the export run
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Version     string    `json:"version"`
	DurationMS  int64     `json:"duration_ms"`
	Edges       int       `json:"edges"`
}

// FieldInfo describes the exported field and its color mapping
type FieldInfo struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Policy string `json:"policy"`
	Color1 string `json:"color1"`
	Color2 string `json:"color2"`
}

// Step is one painted frame. Static fields export a single step without a label.
type Step struct {
	Index  int           `json:"index"`
	Label  string        `json:"label,omitempty"`
	Domain *Domain       `json:"domain,omitempty"`
	Legend []render.Tick `json:"legend,omitempty"`
	Edges  []EdgeStyle   `json:"edges"`
}

type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// EdgeStyle is the color of one edge. Value is nil when the edge has no data.
type EdgeStyle struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"`
	Color string   `json:"color"`
}

// Warning represents a warning message
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Error represents an error message
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// NewSnapshot creates an empty snapshot with default metadata
func NewSnapshot(startTime time.Time) *Snapshot {
	return &Snapshot{
		Metadata: Metadata{
			GeneratedAt: time.Now().UTC(),
			Version:     version.Version,
			DurationMS:  time.Since(startTime).Milliseconds(),
		},
		Steps:    []Step{},
		Warnings: []Warning{},
		Errors:   []Error{},
	}
}

// ToJSON converts the output to pretty-printed JSON
func (s *Snapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ToCompactJSON converts the output to compact JSON
func (s *Snapshot) ToCompactJSON() ([]byte, error) {
	return json.Marshal(s)
}

// AddWarning adds a warning to the output (thread-safe)
func (s *Snapshot) AddWarning(warningType, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, Warning{
		Type:    warningType,
		Message: message,
		Count:   count,
	})
}

// AddError adds an error to the output (thread-safe)
func (s *Snapshot) AddError(errorType, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, Error{
		Type:    errorType,
		Message: message,
		Count:   count,
	})
}

// UpdateDuration updates the duration in metadata
func (s *Snapshot) UpdateDuration(startTime time.Time) {
	s.Metadata.DurationMS = time.Since(startTime).Milliseconds()
}

// Capture walks every step of the engine's active field and records the
// colors it paints. Time-indexed fields are left on their last step.
func Capture(eng *engine.Engine, startTime time.Time) (*Snapshot, error) {
	desc, steps, ok := eng.Field()
	if !ok {
		return nil, fmt.Errorf("capture: %w", engine.ErrNoField)
	}

	snap := NewSnapshot(startTime)
	snap.Metadata.Edges = eng.Network().Len()
	snap.Field = FieldInfo{
		Key:    desc.Key,
		Label:  desc.Label,
		Kind:   desc.Kind.String(),
		Policy: desc.Policy.String(),
		Color1: desc.Color1.Hex(),
		Color2: desc.Color2.Hex(),
	}

	if desc.Kind == engine.Static {
		snap.Steps = append(snap.Steps, captureStep(eng, 0))
	} else {
		for i := 0; i < steps; i++ {
			if err := eng.Seek(i); err != nil {
				return nil, fmt.Errorf("capture step %d: %w", i, err)
			}
			snap.Steps = append(snap.Steps, captureStep(eng, i))
		}
	}

	missing := 0
	for _, st := range snap.Steps {
		for _, e := range st.Edges {
			if e.Value == nil {
				missing++
			}
		}
	}
	if missing > 0 {
		snap.AddWarning("missing_value", "edges without data keep their default color", missing)
	}
	for _, st := range snap.Steps {
		if st.Domain == nil {
			snap.AddError("empty_domain", fmt.Sprintf("step %d has no values", st.Index), 1)
		}
	}

	snap.UpdateDuration(startTime)
	return snap, nil
}

func captureStep(eng *engine.Engine, i int) Step {
	st := Step{Index: i, Label: eng.TimeLabel(), Edges: []EdgeStyle{}}
	if s := eng.Scale(); s != nil {
		d := s.Domain()
		st.Domain = &Domain{Min: d.Min, Max: d.Max}
		st.Legend = legend.Ticks(d, legend.DefaultTicks)
	}
	for _, id := range eng.Network().IDs() {
		es := EdgeStyle{ID: id}
		if v, ok := eng.Value(id); ok && !math.IsNaN(v) {
			v := v
			es.Value = &v
		}
		if c, ok := eng.Color(id); ok {
			es.Color = c.Hex()
		}
		st.Edges = append(st.Edges, es)
	}
	return st
}
