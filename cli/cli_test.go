package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MetropolisTHEMA/metroviz/config"
	"github.com/MetropolisTHEMA/metroviz/testutil"
	cli "github.com/urfave/cli/v2"
)

// runApp runs the command line with args and returns what it wrote
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"metroviz"}, args...))
	return out.String(), err
}

// offlineArgs writes the network and speed series fixtures and returns the flags pointing at them
func offlineArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	geojson := testutil.WriteFile(t, dir, "edges.geojson", testutil.NetworkGeoJSON)
	speed := testutil.WriteFile(t, dir, "speed.json", testutil.SpeedSeriesJSON)
	return []string{"--geojson", geojson, "--fieldFile", "speed_output=" + speed}
}

func TestParseFieldFile(t *testing.T) {
	tests := []struct {
		input   string
		key     string
		path    string
		wantErr bool
	}{
		{input: "speed_output=/tmp/speed.json", key: "speed_output", path: "/tmp/speed.json"},
		{input: " lanes = lanes.json ", key: "lanes", path: "lanes.json"},
		{input: "a=b=c", key: "a", path: "b=c"},
		{input: "lanes", wantErr: true},
		{input: "=lanes.json", wantErr: true},
		{input: "lanes=", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		key, path, err := parseFieldFile(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseFieldFile(%q) expected error, got nil", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFieldFile(%q) unexpected error: %v", tt.input, err)
		} else if key != tt.key || path != tt.path {
			t.Errorf("parseFieldFile(%q) = %q, %q, want %q, %q", tt.input, key, path, tt.key, tt.path)
		}
	}
}

func TestValidatePlotPath(t *testing.T) {
	if err := validatePlotPath(""); err != nil {
		t.Errorf("empty path should be accepted: %v", err)
	}
	if err := validatePlotPath(filepath.Join(t.TempDir(), "plot.html")); err != nil {
		t.Errorf("existing directory should be accepted: %v", err)
	}
	if err := validatePlotPath(filepath.Join(t.TempDir(), "missing", "plot.html")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "metroviz.toml", `
[global]
baseURL = "http://sim.example"
network = 3
run = 7

[style]
color1 = "#000000"

[playback]
interval = "2s"
loop = true
`)

	var got *config.Config
	app := &cli.App{
		Name: "test",
		Flags: append(append([]cli.Flag{}, sourceFlags...),
			intervalFlag, loopFlag, metricsAddrFlag, plotPathFlag),
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	}
	err := app.Run([]string{"test",
		"--config", path,
		"--run", "9",
		"--color2", "#ffffff",
		"--interval", "250ms",
		"--loop=false",
		"--fieldFile", "lanes=lanes.json",
		"--metricsAddr", ":9090",
	})
	if err != nil {
		t.Fatal(err)
	}

	if got.Global.BaseURL != "http://sim.example" || got.Global.NetworkID != 3 {
		t.Errorf("values from the file should survive: %+v", got.Global)
	}
	if got.Global.RunID != 9 {
		t.Errorf("expected run 9 from the flag, got %d", got.Global.RunID)
	}
	if got.Style.Color1 != "#000000" || got.Style.Color2 != "#ffffff" {
		t.Errorf("unexpected colors %q %q", got.Style.Color1, got.Style.Color2)
	}
	if got.Playback.Interval != 250*time.Millisecond || got.Playback.Loop {
		t.Errorf("unexpected playback %+v", got.Playback)
	}
	if got.Global.FieldFiles["lanes"] != "lanes.json" || got.Global.MetricsAddr != ":9090" {
		t.Errorf("unexpected global %+v", got.Global)
	}
}

func TestExport_Offline(t *testing.T) {
	plot := filepath.Join(t.TempDir(), "speed.html")
	args := append([]string{"export"}, offlineArgs(t)...)
	args = append(args, "--field", "speed_output", "--compact", "--plotPath", plot)

	out, err := runApp(t, args...)
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	if missing, ok := testutil.Contains(out, `"key":"speed_output"`, `"label":"06:30"`, `"missing_value"`, "Chart generated"); !ok {
		t.Errorf("export output is missing %q:\n%s", missing, out)
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Error("compact output should be a single line")
	}
	if _, err := os.Stat(plot); err != nil {
		t.Errorf("chart was not written: %v", err)
	}
}

func TestExport_Online(t *testing.T) {
	srv := testutil.NewServer(t, testutil.DefaultRoutes())

	out, err := runApp(t, "export", "--baseURL", srv.URL, "--location", "/network/1/run/1/", "--field", "lanes")
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	if missing, ok := testutil.Contains(out, `"key": "lanes"`, `"kind": "static"`, `"color": "#ff0000"`); !ok {
		t.Errorf("export output is missing %q:\n%s", missing, out)
	}
	if srv.Hits("/api/network/1/edges/lanes") != 1 {
		t.Errorf("expected one lanes request, got %d", srv.Hits("/api/network/1/edges/lanes"))
	}
}

func TestExport_LogFile(t *testing.T) {
	logPath := testutil.TempFilePath(t, "metroviz.log")
	args := append([]string{"export"}, offlineArgs(t)...)
	args = append(args, "--field", "lanes", "--logFile", logPath)

	if out, err := runApp(t, args...); err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not written: %v", err)
	}
	if missing, ok := testutil.Contains(string(data), "metroviz: ", "3 edges"); !ok {
		t.Errorf("log is missing %q:\n%s", missing, data)
	}
}

func TestLegend_Plain(t *testing.T) {
	args := append([]string{"legend"}, offlineArgs(t)...)
	out, err := runApp(t, append(args, "--field", "lanes", "--plain", "--width", "30")...)
	if err != nil {
		t.Fatalf("legend failed: %v\n%s", err, out)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected title, strip and axis, got %q", out)
	}
	if lines[0] != "Lanes" {
		t.Errorf("unexpected title %q", lines[0])
	}
	if len([]rune(lines[1])) != 30 {
		t.Errorf("strip should be 30 wide, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "1.0") || !strings.HasSuffix(lines[2], "4.0") {
		t.Errorf("axis should run from 1.0 to 4.0, got %q", lines[2])
	}
}

func TestLegend_TimeIndexedStep(t *testing.T) {
	args := append([]string{"legend"}, offlineArgs(t)...)
	// steps past the end clamp to the last one
	out, err := runApp(t, append(args, "--field", "speed_output", "--plain", "--step", "9")...)
	if err != nil {
		t.Fatalf("legend failed: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "Speed (simulated) at 06:30\n") {
		t.Errorf("unexpected legend %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	srv := testutil.NewServer(t, testutil.DefaultRoutes())
	offline := offlineArgs(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "export without field",
			args: append([]string{"export"}, offline...),
			want: "field is required",
		},
		{
			name: "legend without field",
			args: append([]string{"legend"}, offline...),
			want: "field is required",
		},
		{
			name: "unknown field",
			args: append(append([]string{"export"}, offline...), "--field", "colour"),
			want: "unknown field",
		},
		{
			name: "invalid color",
			args: append(append([]string{"export"}, offline...), "--field", "lanes", "--color1", "yellow"),
			want: "invalid color",
		},
		{
			name: "invalid field file",
			args: []string{"export", "--geojson", offline[1], "--fieldFile", "speed.json", "--field", "lanes"},
			want: "expected key=path",
		},
		{
			name: "missing plot directory",
			args: append(append([]string{"export"}, offline...), "--field", "lanes", "--plotPath", "/nonexistent/dir/plot.html"),
			want: "plot directory does not exist",
		},
		{
			name: "missing network",
			args: []string{"export", "--baseURL", srv.URL, "--field", "lanes"},
			want: "no network id",
		},
		{
			name: "missing geojson",
			args: []string{"export", "--geojson", "/nonexistent/edges.geojson", "--field", "lanes"},
			want: "geojson file does not exist",
		},
		{
			name: "field without data",
			args: append(append([]string{"legend"}, offline...), "--field", "congestion"),
			want: "no data file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			if err == nil {
				t.Fatalf("expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCLIFlags(t *testing.T) {
	app := NewApp()
	want := map[string][]string{
		"view":   {"config", "field", "interval", "loop", "metricsAddr", "logFile"},
		"export": {"config", "field", "plotPath", "compact", "geojson", "fieldFile"},
		"legend": {"config", "field", "step", "width", "plain"},
	}
	for _, cmd := range app.Commands {
		names := make(map[string]bool)
		for _, f := range cmd.Flags {
			for _, n := range f.Names() {
				names[n] = true
			}
		}
		for _, n := range want[cmd.Name] {
			if !names[n] {
				t.Errorf("command %s is missing flag --%s", cmd.Name, n)
			}
		}
		delete(want, cmd.Name)
	}
	for name := range want {
		t.Errorf("missing command %s", name)
	}
}
