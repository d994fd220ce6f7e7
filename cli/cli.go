package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MetropolisTHEMA/metroviz/config"
	"github.com/MetropolisTHEMA/metroviz/output"
	"github.com/MetropolisTHEMA/metroviz/version"
	cli "github.com/urfave/cli/v2"
)

// parseDate attempts to parse the build date
func parseDate(d string) time.Time {
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Now()
	}
	return t
}

// Shared flag definitions
var (
	// Configuration flags
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to configuration file; other flags override its values",
	}

	// Data source flags
	baseURLFlag = &cli.StringFlag{
		Name:  "baseURL",
		Usage: "Base URL of the simulation web application",
		Value: config.DefaultBaseURL,
	}
	networkFlag = &cli.IntFlag{
		Name:  "network",
		Usage: "Network id",
	}
	runFlag = &cli.IntFlag{
		Name:  "run",
		Usage: "Run id, required for simulated result fields",
	}
	locationFlag = &cli.StringFlag{
		Name:  "location",
		Usage: "Page location carrying the ids, e.g. '/network/3/run/7/'",
	}
	geojsonFlag = &cli.StringFlag{
		Name:  "geojson",
		Usage: "Read the network from a local GeoJSON file instead of the web application",
	}
	fieldFileFlag = &cli.StringSliceFlag{
		Name:  "fieldFile",
		Usage: "Local data file for a field, as key=path (multiple can be passed)",
	}

	// Styling flags
	fieldFlag = &cli.StringFlag{
		Name:  "field",
		Usage: "Field to display (e.g. 'lanes', 'speed_output')",
	}
	color1Flag = &cli.StringFlag{
		Name:  "color1",
		Usage: "Color of the lowest value (#rrggbb)",
	}
	color2Flag = &cli.StringFlag{
		Name:  "color2",
		Usage: "Color of the highest value (#rrggbb)",
	}

	// Playback flags
	intervalFlag = &cli.DurationFlag{
		Name:  "interval",
		Usage: "Delay between time steps",
	}
	loopFlag = &cli.BoolFlag{
		Name:  "loop",
		Usage: "Restart playback after the last step",
		Value: true,
	}
	stepFlag = &cli.IntFlag{
		Name:  "step",
		Usage: "Time step whose legend is printed (0-based)",
	}

	// Output flags
	plotPathFlag = &cli.StringFlag{
		Name:  "plotPath",
		Usage: "Path where to save the HTML chart (e.g., '/path/to/speed.html'). If not provided, no plot will be generated.",
	}
	compactFlag = &cli.BoolFlag{
		Name:  "compact",
		Usage: "Output compact JSON (no pretty printing)",
		Value: false,
	}
	plainFlag = &cli.BoolFlag{
		Name:  "plain",
		Usage: "Output plain text without colors",
		Value: false,
	}
	widthFlag = &cli.IntFlag{
		Name:  "width",
		Usage: "Legend width in characters",
		Value: output.DefaultLegendWidth,
	}

	// Service flags
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metricsAddr",
		Usage: "Serve Prometheus metrics on this address (e.g. ':9090')",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "logFile",
		Usage: "Write logs to this file",
	}
)

// sourceFlags are shared by every command
var sourceFlags = []cli.Flag{
	configFlag,
	baseURLFlag,
	networkFlag,
	runFlag,
	locationFlag,
	geojsonFlag,
	fieldFileFlag,
	fieldFlag,
	color1Flag,
	color2Flag,
	logFileFlag,
}

func validatePlotPath(plotPath string) error {
	if plotPath != "" {
		plotDir := filepath.Dir(plotPath)
		if plotDir == "." {
			plotDir, _ = os.Getwd()
		}
		if _, err := os.Stat(plotDir); os.IsNotExist(err) {
			return fmt.Errorf("plot directory does not exist: %s", plotDir)
		}
	}
	return nil
}

// parseFieldFile splits a key=path argument
func parseFieldFile(arg string) (key, path string, err error) {
	key, path, ok := strings.Cut(arg, "=")
	key, path = strings.TrimSpace(key), strings.TrimSpace(path)
	if !ok || key == "" || path == "" {
		return "", "", fmt.Errorf("invalid fieldFile %q, expected key=path", arg)
	}
	return key, path, nil
}

// loadConfig reads --config (or the defaults) and applies every flag that was set on top
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	g := cfg.Global
	if c.IsSet("baseURL") {
		g.BaseURL = strings.TrimRight(c.String("baseURL"), "/")
	}
	if c.IsSet("network") {
		g.NetworkID = c.Int("network")
	}
	if c.IsSet("run") {
		g.RunID = c.Int("run")
	}
	if c.IsSet("location") {
		g.Location = c.String("location")
	}
	if c.IsSet("geojson") {
		g.GeoJSON = c.String("geojson")
	}
	if c.IsSet("logFile") {
		g.LogFile = c.String("logFile")
	}
	if c.IsSet("metricsAddr") {
		g.MetricsAddr = c.String("metricsAddr")
	}
	if c.IsSet("plotPath") {
		g.PlotPath = c.String("plotPath")
	}
	for _, arg := range c.StringSlice("fieldFile") {
		key, path, err := parseFieldFile(arg)
		if err != nil {
			return nil, err
		}
		g.FieldFiles[key] = path
	}

	if c.IsSet("color1") {
		cfg.Style.Color1 = c.String("color1")
	}
	if c.IsSet("color2") {
		cfg.Style.Color2 = c.String("color2")
	}
	if c.IsSet("interval") {
		cfg.Playback.Interval = c.Duration("interval")
	}
	if c.IsSet("loop") {
		cfg.Playback.Loop = c.Bool("loop")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validatePlotPath(g.PlotPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// handleViewCommand runs the interactive terminal map
func handleViewCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return View(c.Context, cfg, c.String("field"))
}

// handleExportCommand writes the styled field as JSON and, optionally, an HTML chart
func handleExportCommand(c *cli.Context) error {
	if !c.IsSet("field") {
		return fmt.Errorf("field is required for export")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Export(ctx, c.App.Writer, cfg, c.String("field"), c.Bool("compact"))
}

// handleLegendCommand prints the legend of one field
func handleLegendCommand(c *cli.Context) error {
	if !c.IsSet("field") {
		return fmt.Errorf("field is required for legend")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Legend(ctx, c.App.Writer, cfg, c.String("field"), LegendOptions{
		Step:  c.Int("step"),
		Width: c.Int("width"),
		Plain: c.Bool("plain"),
	})
}

// NewApp builds the command line application
func NewApp() *cli.App {
	return &cli.App{
		Name:     "metroviz",
		Usage:    "Color road network edges by simulation attributes and play them back over time",
		Version:  version.Version,
		Compiled: parseDate(version.Date),
		Commands: []*cli.Command{
			{
				Name:  "view",
				Usage: "Open the interactive terminal map",
				Flags: append(append([]cli.Flag{}, sourceFlags...),
					intervalFlag,
					loopFlag,
					metricsAddrFlag,
				),
				Action: handleViewCommand,
			},
			{
				Name:  "export",
				Usage: "Style one field and write its colors step by step",
				Flags: append(append([]cli.Flag{}, sourceFlags...),
					plotPathFlag,
					compactFlag,
					metricsAddrFlag,
				),
				Action: handleExportCommand,
			},
			{
				Name:  "legend",
				Usage: "Print the legend of one field",
				Flags: append(append([]cli.Flag{}, sourceFlags...),
					stepFlag,
					widthFlag,
					plainFlag,
				),
				Action: handleLegendCommand,
			},
		},
	}
}

var App = NewApp()
