package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// NetworkGeoJSON is a three-edge network. Edge 3 has no explicit color.
const NetworkGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[2.33, 48.83], [2.34, 48.84]]},
     "properties": {"edge_id": 1, "name": "Rue de Rivoli", "lanes": 1, "length": 120.5, "speed": 30, "color": "#aaaaaa"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[2.34, 48.84], [2.35, 48.85]]},
     "properties": {"edge_id": 2, "name": "Boulevard Voltaire", "lanes": 2, "length": 340.25, "speed": 50, "color": "#bbbbbb"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[2.35, 48.85], [2.36, 48.86]]},
     "properties": {"edge_id": 3, "name": "A86", "lanes": 4, "length": 1500, "speed": "90"}}
  ]
}`

// EdgeListingJSON is the edge listing matching NetworkGeoJSON
const EdgeListingJSON = `[
  {"id": 11, "edge_id": 1, "name": "Rue de Rivoli", "lanes": 1, "length": 120.5, "speed": 30, "road_type": 2},
  {"id": 12, "edge_id": 2, "name": "Boulevard Voltaire", "lanes": 2, "length": 340.25, "speed": 50, "road_type": 2},
  {"id": 13, "edge_id": 3, "name": "A86", "lanes": 4, "length": 1500.123, "speed": 90, "road_type": 1}
]`

// LanesJSON is a static mapping; edge 3 is missing
const LanesJSON = `{"1": 1, "2": 4}`

// SpeedSeriesJSON is a three-step time-indexed mapping with a missing sample
const SpeedSeriesJSON = `{"1": [30, 20, 10], "2": [50, null, 45], "3": [90, 85, 80]}`

// ResultRecordsJSON is the flat result listing with two steps
const ResultRecordsJSON = `[
  {"edge": 1, "time": "06:15:00", "speed": 25, "congestion": 0.4, "travel_time": "00:00:17"},
  {"edge": 1, "time": "06:00:00", "speed": 30, "congestion": 0.1, "travel_time": "00:00:14"},
  {"edge": 2, "time": "06:00:00", "speed": 50, "congestion": 0.2, "travel_time": "00:00:24"},
  {"edge": 2, "time": "06:15:00", "speed": 48, "congestion": 0.3, "travel_time": "00:00:25"}
]`

// WriteFile writes content under dir and returns its path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// TempFilePath returns a path named name inside a fresh test directory.
// The file itself is not created.
func TempFilePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// Server is a fake web application serving fixed JSON bodies by path
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]string
	fail   map[string]int
	hits   map[string]int
	gate   map[string]chan struct{}
}

// NewServer serves routes (path to body) and closes itself at test cleanup
func NewServer(t *testing.T, routes map[string]string) *Server {
	t.Helper()

	s := &Server{
		routes: make(map[string]string, len(routes)),
		fail:   make(map[string]int),
		hits:   make(map[string]int),
		gate:   make(map[string]chan struct{}),
	}
	for k, v := range routes {
		s.routes[k] = v
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// DefaultRoutes serves network 1 and run 1 from the fixtures
func DefaultRoutes() map[string]string {
	return map[string]string{
		"/network/1/edges.geojson/":            NetworkGeoJSON,
		"/api/network/1/edges/":                EdgeListingJSON,
		"/api/network/1/edges/lanes":           LanesJSON,
		"/api/run/1/edges_results/":            ResultRecordsJSON,
		"/api/run/1/edges_results/speed":       SpeedSeriesJSON,
		"/api/run/1/edges_results/congestion":  `{"1": [0.1, 0.4], "2": [0.2, 0.3]}`,
		"/api/run/1/edges_results/travel_time": `{"1": ["00:00:14", "00:00:17"], "2": ["00:00:24", null]}`,
		"/api/network/1/edges/length":          `{"1": 120.5, "2": 340.25, "3": 1500}`,
		"/api/network/1/edges/speed":           `{"1": 30, "2": 50, "3": 90}`,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	status, failing := s.fail[r.URL.Path]
	body, ok := s.routes[r.URL.Path]
	gate := s.gate[r.URL.Path]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if failing {
		http.Error(w, fmt.Sprintf("injected failure %d", status), status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// Fail makes path answer with status until Recover is called
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = status
}

// Recover undoes Fail
func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, path)
}

// Hold blocks requests to path until the returned release function is called
func (s *Server) Hold(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gate[path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gate, path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Hits returns how many requests reached path
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Route replaces the body served at path
func (s *Server) Route(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = body
}

// Contains reports whether body mentions all needles
func Contains(body string, needles ...string) (missing string, ok bool) {
	for _, n := range needles {
		if !strings.Contains(body, n) {
			return n, false
		}
	}
	return "", true
}
