package ingestor

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/MetropolisTHEMA/metroviz/network"
)

// Normalize decodes any of the accepted payload shapes into FieldData:
//
//	{"12": 3, ...}                  static mapping
//	{"12": [40.1, 38.2, ...], ...}  time-indexed mapping
//	[{"edge": 12, "time": "06:00:00", "speed": 40.1}, ...]  flat records
//
// valueKey names the record column to extract; mappings ignore it.
func Normalize(field, valueKey string, raw []byte) (FieldData, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return FieldData{}, fmt.Errorf("decode %s: %w", field, err)
	}
	switch v := doc.(type) {
	case map[string]any:
		return normalizeMapping(field, v)
	case []any:
		return NormalizeRecords(field, valueKey, v)
	default:
		return FieldData{}, fmt.Errorf("decode %s: %w: %T", field, ErrShape, doc)
	}
}

func normalizeMapping(field string, m map[string]any) (FieldData, error) {
	data := FieldData{Field: field}
	scalars := 0

	for id, raw := range m {
		if arr, ok := raw.([]any); ok {
			series := make([]float64, len(arr))
			for i, s := range arr {
				v, err := ParseValue(s)
				if err != nil {
					return FieldData{}, fmt.Errorf("%s: edge %s step %d: %w", field, id, i, err)
				}
				series[i] = v
			}
			if data.Series == nil {
				data.Series = make(map[string][]float64, len(m))
			}
			data.Series[id] = series
			if len(series) > data.Steps {
				data.Steps = len(series)
			}
			continue
		}

		v, err := ParseValue(raw)
		if err != nil {
			return FieldData{}, fmt.Errorf("%s: edge %s: %w", field, id, err)
		}
		scalars++
		if data.Static == nil {
			data.Static = make(map[string]float64, len(m))
		}
		if !math.IsNaN(v) {
			data.Static[id] = v
		}
	}

	if data.Series != nil && scalars > 0 {
		return FieldData{}, fmt.Errorf("%s: %w: mixed scalars and arrays", field, ErrShape)
	}
	if data.Series == nil && data.Static == nil {
		data.Static = map[string]float64{}
	}
	padSeries(data.Series, data.Steps)
	return data, nil
}

type sample struct {
	at    float64
	value float64
}

// NormalizeRecords groups flat result rows by edge and orders them by time.
// When every row carries a time, steps are the union of distinct times and
// Times holds their "HH:MM" labels; otherwise rows keep their arrival order.
func NormalizeRecords(field, valueKey string, records []any) (FieldData, error) {
	byEdge := make(map[string][]sample)
	order := make([]string, 0)
	times := make(map[float64]struct{})
	timed := len(records) > 0

	for i, r := range records {
		obj, ok := r.(map[string]any)
		if !ok {
			return FieldData{}, fmt.Errorf("%s: record %d: %w: %T", field, i, ErrShape, r)
		}
		id := recordEdge(obj)
		if id == "" {
			return FieldData{}, fmt.Errorf("%s: record %d: missing edge", field, i)
		}
		v, err := ParseValue(obj[valueKey])
		if err != nil {
			return FieldData{}, fmt.Errorf("%s: record %d: %w", field, i, err)
		}

		at := float64(len(byEdge[id]))
		if t, ok := obj["time"]; ok && t != nil {
			sec, err := ParseValue(t)
			if err != nil {
				return FieldData{}, fmt.Errorf("%s: record %d time: %w", field, i, err)
			}
			at = sec
			times[sec] = struct{}{}
		} else {
			timed = false
		}

		if _, seen := byEdge[id]; !seen {
			order = append(order, id)
		}
		byEdge[id] = append(byEdge[id], sample{at: at, value: v})
	}

	data := FieldData{Field: field, Series: make(map[string][]float64, len(byEdge))}
	if timed {
		axis := make([]float64, 0, len(times))
		for t := range times {
			axis = append(axis, t)
		}
		sort.Float64s(axis)
		pos := make(map[float64]int, len(axis))
		data.Times = make([]string, len(axis))
		for i, t := range axis {
			pos[t] = i
			data.Times[i] = FormatClock(t)
		}
		data.Steps = len(axis)
		for _, id := range order {
			series := nanSeries(data.Steps)
			for _, s := range byEdge[id] {
				series[pos[s.at]] = s.value
			}
			data.Series[id] = series
		}
		return data, nil
	}

	for _, id := range order {
		samples := byEdge[id]
		series := make([]float64, len(samples))
		for i, s := range samples {
			series[i] = s.value
		}
		data.Series[id] = series
		if len(series) > data.Steps {
			data.Steps = len(series)
		}
	}
	padSeries(data.Series, data.Steps)
	return data, nil
}

func recordEdge(obj map[string]any) string {
	switch e := obj["edge"].(type) {
	case map[string]any:
		return network.FormatID(e["edge_id"])
	case nil:
		return network.FormatID(obj["edge_id"])
	default:
		return network.FormatID(e)
	}
}

// ParseValue converts a decoded JSON value to a float. null and empty strings
// are missing (NaN); strings may hold numbers or HH:MM:SS durations in seconds.
func ParseValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return math.NaN(), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		if strings.Contains(s, ":") {
			return ParseDuration(s)
		}
		return 0, fmt.Errorf("invalid value %q", v)
	default:
		return 0, fmt.Errorf("invalid value of type %T", raw)
	}
}

// ParseDuration parses "HH:MM:SS", "HH:MM" or "N day(s), HH:MM:SS" into seconds
func ParseDuration(s string) (float64, error) {
	days := 0.0
	if i := strings.Index(s, ","); i >= 0 {
		fields := strings.Fields(s[:i])
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "day") {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		days = d
		s = strings.TrimSpace(s[i+1:])
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	total := 0.0
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		switch i {
		case 0:
			total += v * 3600
		case 1:
			total += v * 60
		case 2:
			total += v
		}
	}
	return days*86400 + total, nil
}

// FormatClock renders seconds since midnight as "HH:MM"
func FormatClock(sec float64) string {
	m := int(math.Floor(sec / 60))
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func padSeries(series map[string][]float64, steps int) {
	for id, s := range series {
		for len(s) < steps {
			s = append(s, math.NaN())
		}
		series[id] = s
	}
}
