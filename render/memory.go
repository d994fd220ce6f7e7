package render

import (
	"sync"

	"github.com/MetropolisTHEMA/metroviz/scale"
)

// Band is one recorded legend segment
type Band struct {
	Color    scale.RGB
	Position float64
}

// Legend is one complete legend element: its bands and axis
type Legend struct {
	Bands []Band
	Ticks []Tick
}

// Memory is a Surface that records everything drawn onto it.
// It backs the exports and the tests.
type Memory struct {
	mu sync.Mutex

	colors           map[string]scale.RGB
	legends          []Legend
	pending          []Band
	containerShown   bool
	showCalls        int
	timeLabel        string
	featureColorSets int
}

// NewMemory creates an empty recording surface
func NewMemory() *Memory {
	return &Memory{
		colors: make(map[string]scale.RGB),
	}
}

func (m *Memory) SetFeatureColor(edgeID string, c scale.RGB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colors[edgeID] = c
	m.featureColorSets++
}

func (m *Memory) RemoveLegend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legends = nil
	m.pending = nil
}

func (m *Memory) DrawLegendBand(c scale.RGB, position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, Band{Color: c, Position: position})
}

func (m *Memory) DrawLegendAxis(ticks []Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legends = append(m.legends, Legend{
		Bands: m.pending,
		Ticks: append([]Tick(nil), ticks...),
	})
	m.pending = nil
}

func (m *Memory) ShowLegendContainer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containerShown = true
	m.showCalls++
}

func (m *Memory) SetTimeLabel(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeLabel = text
}

// Color returns the last color set for an edge
func (m *Memory) Color(edgeID string) (scale.RGB, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colors[edgeID]
	return c, ok
}

// Colors returns a copy of every edge color
func (m *Memory) Colors() map[string]scale.RGB {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]scale.RGB, len(m.colors))
	for k, v := range m.colors {
		out[k] = v
	}
	return out
}

// Legends returns the legend elements currently present
func (m *Memory) Legends() []Legend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Legend(nil), m.legends...)
}

// ContainerShown reports whether the legend container was made visible, and how often
func (m *Memory) ContainerShown() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containerShown, m.showCalls
}

// TimeLabel returns the current time label
func (m *Memory) TimeLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeLabel
}

// FeatureColorSets counts SetFeatureColor calls
func (m *Memory) FeatureColorSets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.featureColorSets
}
