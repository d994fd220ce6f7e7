package ingestor

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/MetropolisTHEMA/metroviz/testutil"
)

func TestNormalize_Shapes(t *testing.T) {
	testCases := []struct {
		name        string
		raw         string
		timeIndexed bool
		steps       int
		wantErr     bool
	}{
		{"static", `{"1": 2, "2": "3.5"}`, false, 0, false},
		{"static with null", `{"1": null, "2": 1}`, false, 0, false},
		{"series", `{"1": [1, 2], "2": [3]}`, true, 2, false},
		{"records without time", `[{"edge": 1, "v": 1}, {"edge": 1, "v": 2}]`, true, 2, false},
		{"empty mapping", `{}`, false, 0, false},
		{"mixed", `{"1": 2, "2": [1]}`, false, 0, true},
		{"scalar document", `42`, false, 0, true},
		{"bad value", `{"1": "fast"}`, false, 0, true},
		{"bool value", `{"1": true}`, false, 0, true},
		{"record without edge", `[{"v": 1}]`, false, 0, true},
		{"invalid json", `{`, false, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Normalize("f", "v", []byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if data.TimeIndexed() != tc.timeIndexed || data.Steps != tc.steps {
				t.Errorf("got timeIndexed=%v steps=%d, want %v %d", data.TimeIndexed(), data.Steps, tc.timeIndexed, tc.steps)
			}
		})
	}
}

func TestNormalize_PadsShortSeries(t *testing.T) {
	data, err := Normalize("f", "", []byte(`{"1": [1, 2, 3], "2": [4]}`))
	if err != nil {
		t.Fatal(err)
	}
	s := data.Series["2"]
	if len(s) != 3 || s[0] != 4 || !math.IsNaN(s[1]) || !math.IsNaN(s[2]) {
		t.Errorf("expected [4 NaN NaN], got %v", s)
	}
}

func TestNormalizeRecords_TimeUnion(t *testing.T) {
	raw := `[
	  {"edge": {"edge_id": 7}, "time": "06:30:00", "speed": 10},
	  {"edge": {"edge_id": 7}, "time": "06:00:00", "speed": 12},
	  {"edge_id": 8, "time": "06:15:00", "speed": "14"}
	]`
	data, err := Normalize("speed_output", "speed", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if data.Steps != 3 {
		t.Fatalf("expected 3 distinct times, got %d", data.Steps)
	}
	expectedTimes := []string{"06:00", "06:15", "06:30"}
	for i, l := range expectedTimes {
		if data.Times[i] != l {
			t.Errorf("Times[%d] = %q, want %q", i, data.Times[i], l)
		}
	}
	if s := data.Series["7"]; s[0] != 12 || !math.IsNaN(s[1]) || s[2] != 10 {
		t.Errorf("unexpected series for 7: %v", s)
	}
	if s := data.Series["8"]; !math.IsNaN(s[0]) || s[1] != 14 {
		t.Errorf("unexpected series for 8: %v", s)
	}
}

func TestParseValue(t *testing.T) {
	testCases := []struct {
		in       any
		expected float64
		missing  bool
		wantErr  bool
	}{
		{float64(3), 3, false, false},
		{"2.5", 2.5, false, false},
		{"01:02:03", 3723, false, false},
		{"00:15", 900, false, false},
		{"1 day, 01:00:00", 90000, false, false},
		{nil, 0, true, false},
		{"", 0, true, false},
		{"abc", 0, false, true},
		{"1:xx:00", 0, false, true},
		{[]any{1.0}, 0, false, true},
	}
	for _, tc := range testCases {
		got, err := ParseValue(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseValue(%v) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if tc.missing {
			if !math.IsNaN(got) {
				t.Errorf("ParseValue(%v) = %v, want NaN", tc.in, got)
			}
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseValue(%v) = %v, want %v", tc.in, got, tc.expected)
		}
	}
}

func TestFormatClock(t *testing.T) {
	testCases := map[float64]string{
		0:     "00:00",
		21600: "06:00",
		22500: "06:15",
		86399: "23:59",
		90000: "25:00",
	}
	for in, expected := range testCases {
		if got := FormatClock(in); got != expected {
			t.Errorf("FormatClock(%v) = %q, want %q", in, got, expected)
		}
	}
}

func TestFiles_Fetch(t *testing.T) {
	dir := t.TempDir()
	netPath := testutil.WriteFile(t, dir, "edges.geojson", testutil.NetworkGeoJSON)
	speedPath := testutil.WriteFile(t, dir, "speed.json", testutil.SpeedSeriesJSON)

	n, err := LoadNetworkFile(netPath)
	if err != nil {
		t.Fatalf("LoadNetworkFile failed: %v", err)
	}
	e, _ := n.Edge("3")
	if e.Speed != 90 {
		t.Errorf("numeric string property should parse, got %v", e.Speed)
	}

	files := &Files{
		Paths:   map[string]string{"speed_output": speedPath},
		Network: n,
	}
	ctx := context.Background()

	series, err := files.Fetch(ctx, Query{Field: "speed_output", Source: "speed", TimeIndexed: true})
	if err != nil || series.Steps != 3 {
		t.Fatalf("unexpected series %+v, err %v", series, err)
	}

	lanes, err := files.Fetch(ctx, Query{Field: "lanes", Source: "lanes"})
	if err != nil {
		t.Fatalf("static fields should fall back to network attributes: %v", err)
	}
	if lanes.Static["3"] != 4 {
		t.Errorf("unexpected lanes %v", lanes.Static)
	}

	_, err = files.Fetch(ctx, Query{Field: "congestion", Source: "congestion", TimeIndexed: true})
	if !errors.Is(err, ErrFetchFailure) {
		t.Errorf("expected ErrFetchFailure without a file, got %v", err)
	}

	_, err = LoadFieldFile(filepath.Join(dir, "missing.json"), "x", "x")
	if !errors.Is(err, ErrFetchFailure) {
		t.Errorf("expected ErrFetchFailure for a missing file, got %v", err)
	}
}
