package ingestor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/MetropolisTHEMA/metroviz/network"
)

var (
	ErrFetchFailure = errors.New("fetch failed")
	ErrShape        = errors.New("unexpected data shape")
)

// Shape selects how a time-indexed field is requested
type Shape uint8

const (
	// ShapeField requests one field as a mapping of edge to values
	ShapeField Shape = iota
	// ShapeRecords requests the flat result listing and extracts one column
	ShapeRecords
)

func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(s) {
	case "", "field":
		return ShapeField, nil
	case "records":
		return ShapeRecords, nil
	default:
		return ShapeField, fmt.Errorf("unknown endpoint shape %q", s)
	}
}

func (s Shape) String() string {
	if s == ShapeRecords {
		return "records"
	}
	return "field"
}

// Query describes the data one field needs
type Query struct {
	Field       string // cache key, e.g. "speed_output"
	Source      string // attribute name on the server, e.g. "speed"
	TimeIndexed bool
	Shape       Shape
}

// Source resolves the data of a field
type Source interface {
	Fetch(ctx context.Context, q Query) (FieldData, error)
}

// FieldData is one field's per-edge values. Exactly one of Static and Series is set.
// Missing samples inside a series are NaN.
type FieldData struct {
	Field  string
	Static map[string]float64
	Series map[string][]float64
	Steps  int
	Times  []string
}

// TimeIndexed reports whether the data carries a time axis
func (d FieldData) TimeIndexed() bool {
	return d.Series != nil
}

// StepValues returns the values of step i, omitting missing samples
func (d FieldData) StepValues(i int) map[string]float64 {
	out := make(map[string]float64, len(d.Series))
	for id, s := range d.Series {
		if i < 0 || i >= len(s) || math.IsNaN(s[i]) {
			continue
		}
		out[id] = s[i]
	}
	return out
}

// Label returns the time label carried by the data for step i
func (d FieldData) Label(i int) (string, bool) {
	if i < 0 || i >= len(d.Times) || d.Times[i] == "" {
		return "", false
	}
	return d.Times[i], true
}

// FetchError is a failed request. It matches ErrFetchFailure with errors.Is.
type FetchError struct {
	URL    string
	Status int // 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailure
}

const maxBodyBytes = 256 << 20

// Client fetches network geometry and attribute data from the web application
type Client struct {
	BaseURL   string
	NetworkID int
	RunID     int
	HTTP      *http.Client
	Logger    *log.Logger
}

func NewClient(baseURL string, loc network.Location, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		NetworkID: loc.NetworkID,
		RunID:     loc.RunID,
		HTTP:      &http.Client{Timeout: timeout},
		Logger:    logger,
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	c.Logger.Printf("GET %s: %d bytes in %v", url, len(body), time.Since(start).Round(time.Millisecond))
	return body, nil
}

// FetchNetwork loads the edge geometry and enriches it with the edge listing.
// A failing listing only costs the tooltip attributes.
func (c *Client) FetchNetwork(ctx context.Context) (*network.Network, error) {
	if c.NetworkID <= 0 {
		return nil, fmt.Errorf("fetch network: %w", network.ErrNoNetwork)
	}
	body, err := c.get(ctx, fmt.Sprintf("/network/%d/edges.geojson/", c.NetworkID))
	if err != nil {
		return nil, err
	}
	n, err := ParseFeatureCollection(body)
	if err != nil {
		return nil, err
	}

	records, err := c.FetchEdgeRecords(ctx)
	if err != nil {
		c.Logger.Printf("edge listing unavailable: %v", err)
		return n, nil
	}
	matched := n.Enrich(records)
	c.Logger.Printf("network %d: %d edges, %d enriched", c.NetworkID, n.Len(), matched)
	return n, nil
}

// FetchEdgeRecords loads the edge listing used for tooltips
func (c *Client) FetchEdgeRecords(ctx context.Context) ([]network.EdgeRecord, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/network/%d/edges/", c.NetworkID))
	if err != nil {
		return nil, err
	}
	return ParseEdgeRecords(body)
}

// Fetch implements Source against the HTTP endpoints
func (c *Client) Fetch(ctx context.Context, q Query) (FieldData, error) {
	var path string
	switch {
	case !q.TimeIndexed:
		if c.NetworkID <= 0 {
			return FieldData{}, fmt.Errorf("fetch %s: %w", q.Field, network.ErrNoNetwork)
		}
		path = fmt.Sprintf("/api/network/%d/edges/%s", c.NetworkID, q.Source)
	case c.RunID <= 0:
		return FieldData{}, fmt.Errorf("fetch %s: no run selected", q.Field)
	case q.Shape == ShapeRecords:
		path = fmt.Sprintf("/api/run/%d/edges_results/", c.RunID)
	default:
		path = fmt.Sprintf("/api/run/%d/edges_results/%s", c.RunID, q.Source)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return FieldData{}, err
	}
	data, err := Normalize(q.Field, q.Source, body)
	if err != nil {
		return FieldData{}, err
	}
	return conform(q, data)
}

// conform checks the data against the requested kind. An empty mapping fits either kind.
func conform(q Query, data FieldData) (FieldData, error) {
	if q.TimeIndexed == data.TimeIndexed() {
		return data, nil
	}
	if q.TimeIndexed && len(data.Static) == 0 {
		data.Static = nil
		data.Series = map[string][]float64{}
		return data, nil
	}
	return FieldData{}, fmt.Errorf("%s: %w: time-indexed=%v, data time-indexed=%v", q.Field, ErrShape, q.TimeIndexed, data.TimeIndexed())
}
