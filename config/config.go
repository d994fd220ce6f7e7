package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MetropolisTHEMA/metroviz/engine"
	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/playback"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// colors of a field that only exists in the config file
var (
	defaultColor1 = scale.MustParseHex("#fff500")
	defaultColor2 = scale.MustParseHex("#ff0000")
)

type GlobalConfig struct {
	BaseURL     string            `toml:"baseURL"`
	NetworkID   int               `toml:"network"`
	RunID       int               `toml:"run"`
	Location    string            `toml:"location"`
	LogFile     string            `toml:"logFile"`
	MetricsAddr string            `toml:"metricsAddr"`
	GeoJSON     string            `toml:"geojson"`
	PlotPath    string            `toml:"plotPath"`
	Timeout     time.Duration     `toml:"timeout"`
	FieldFiles  map[string]string `toml:"fieldFiles"`
}

// StyleConfig holds the global styling overrides. Empty colors keep each field's own.
type StyleConfig struct {
	Color1    string `toml:"color1"`
	Color2    string `toml:"color2"`
	Highlight string `toml:"highlight"`
	Bands     int    `toml:"bands"`
}

type PlaybackConfig struct {
	Interval    time.Duration `toml:"interval"`
	Loop        bool          `toml:"loop"`
	StartTime   string        `toml:"startTime"`
	StepMinutes int           `toml:"stepMinutes"`
}

// FieldConfig overrides or adds one selectable field
type FieldConfig struct {
	Label  string `toml:"label"`
	Source string `toml:"source"`
	Kind   string `toml:"kind"`
	Policy string `toml:"policy"`
	Color1 string `toml:"color1"`
	Color2 string `toml:"color2"`
	Shape  string `toml:"shape"`
	File   string `toml:"file"`
}

type Config struct {
	Global   *GlobalConfig
	Style    *StyleConfig
	Playback *PlaybackConfig
	Fields   map[string]*FieldConfig
}

// DefaultConfig returns the settings used when no config file is given
func DefaultConfig() *Config {
	return &Config{
		Global: &GlobalConfig{
			BaseURL:    DefaultBaseURL,
			Timeout:    DefaultTimeout,
			FieldFiles: make(map[string]string),
		},
		Style: &StyleConfig{Bands: legend.DefaultBands},
		Playback: &PlaybackConfig{
			Interval:    playback.DefaultInterval,
			Loop:        true,
			StartTime:   ingestor.FormatClock(engine.DefaultStartTime.Seconds()),
			StepMinutes: engine.DefaultStepMinutes,
		},
		Fields: make(map[string]*FieldConfig),
	}
}

func LoadConfig(configPath string) (*Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(configData))
}

// Parse decodes TOML text on top of DefaultConfig
func Parse(data string) (*Config, error) {
	var rawConfig map[string]any
	if _, err := toml.Decode(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config := DefaultConfig()
	for key, value := range rawConfig {
		section, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected top-level key %q", key)
		}
		switch key {
		case "global":
			if err := parseGlobalConfig(section, config.Global); err != nil {
				return nil, err
			}
		case "style":
			parseStyleConfig(section, config.Style)
		case "playback":
			if err := parsePlaybackConfig(section, config.Playback); err != nil {
				return nil, err
			}
		case "fields":
			for fieldKey, fieldValue := range section {
				fieldMap, ok := fieldValue.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("field %q must be a table", fieldKey)
				}
				config.Fields[fieldKey] = parseFieldConfig(fieldMap)
			}
		default:
			return nil, fmt.Errorf("unknown config section %q", key)
		}
	}
	return config, nil
}

func parseGlobalConfig(m map[string]any, config *GlobalConfig) error {
	if v, ok := m["baseURL"].(string); ok {
		config.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := m["network"].(int64); ok {
		config.NetworkID = int(v)
	}
	if v, ok := m["run"].(int64); ok {
		config.RunID = int(v)
	}
	if v, ok := m["location"].(string); ok {
		config.Location = v
	}
	if v, ok := m["logFile"].(string); ok {
		config.LogFile = v
	}
	if v, ok := m["metricsAddr"].(string); ok {
		config.MetricsAddr = v
	}
	if v, ok := m["geojson"].(string); ok {
		config.GeoJSON = v
	}
	if v, ok := m["plotPath"].(string); ok {
		config.PlotPath = v
	}
	if v, ok := m["timeout"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		config.Timeout = d
	}
	if v, ok := m["fieldFiles"].(map[string]any); ok {
		for field, path := range v {
			if s, ok := path.(string); ok {
				config.FieldFiles[field] = s
			}
		}
	}
	return nil
}

func parseStyleConfig(m map[string]any, config *StyleConfig) {
	if v, ok := m["color1"].(string); ok {
		config.Color1 = v
	}
	if v, ok := m["color2"].(string); ok {
		config.Color2 = v
	}
	if v, ok := m["highlight"].(string); ok {
		config.Highlight = v
	}
	if v, ok := m["bands"].(int64); ok {
		config.Bands = int(v)
	}
}

func parsePlaybackConfig(m map[string]any, config *PlaybackConfig) error {
	switch v := m["interval"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", v, err)
		}
		config.Interval = d
	case int64:
		// bare numbers are milliseconds
		config.Interval = time.Duration(v) * time.Millisecond
	}
	if v, ok := m["loop"].(bool); ok {
		config.Loop = v
	}
	if v, ok := m["startTime"].(string); ok {
		config.StartTime = v
	}
	if v, ok := m["stepMinutes"].(int64); ok {
		config.StepMinutes = int(v)
	}
	return nil
}

func parseFieldConfig(m map[string]any) *FieldConfig {
	config := &FieldConfig{}
	if v, ok := m["label"].(string); ok {
		config.Label = v
	}
	if v, ok := m["source"].(string); ok {
		config.Source = v
	}
	if v, ok := m["kind"].(string); ok {
		config.Kind = v
	}
	if v, ok := m["policy"].(string); ok {
		config.Policy = v
	}
	if v, ok := m["color1"].(string); ok {
		config.Color1 = v
	}
	if v, ok := m["color2"].(string); ok {
		config.Color2 = v
	}
	if v, ok := m["shape"].(string); ok {
		config.Shape = v
	}
	if v, ok := m["file"].(string); ok {
		config.File = v
	}
	return config
}

// Offline reports whether the network is read from a local GeoJSON file
func (c *Config) Offline() bool {
	return c.Global != nil && c.Global.GeoJSON != ""
}

func (c *Config) Validate() error {
	if c.Global == nil || c.Style == nil || c.Playback == nil {
		return fmt.Errorf("global, style and playback sections are required")
	}

	if c.Offline() {
		if _, err := os.Stat(c.Global.GeoJSON); os.IsNotExist(err) {
			return fmt.Errorf("geojson file does not exist: %s", c.Global.GeoJSON)
		}
	} else {
		if c.Global.BaseURL == "" {
			return fmt.Errorf("baseURL is required unless a geojson file is given")
		}
		if _, err := c.Location(); err != nil {
			return err
		}
	}

	for _, text := range []string{c.Style.Color1, c.Style.Color2, c.Style.Highlight} {
		if text == "" {
			continue
		}
		if _, err := scale.ParseHex(text); err != nil {
			return fmt.Errorf("style: %w", err)
		}
	}
	if c.Style.Bands < 0 {
		return fmt.Errorf("bands must not be negative, got %d", c.Style.Bands)
	}

	if c.Playback.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Playback.Interval)
	}
	if c.Playback.StepMinutes < 0 {
		return fmt.Errorf("stepMinutes must not be negative, got %d", c.Playback.StepMinutes)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}

	for _, key := range c.FieldKeys() {
		if _, err := c.descriptor(key, c.Fields[key], nil); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves network and run ids; a location string wins over the numeric ids
func (c *Config) Location() (network.Location, error) {
	if c.Global.Location != "" {
		return network.ParseLocation(c.Global.Location)
	}
	if c.Global.NetworkID <= 0 {
		return network.Location{}, fmt.Errorf("%w: set network or location", network.ErrNoNetwork)
	}
	if c.Global.RunID < 0 {
		return network.Location{}, fmt.Errorf("invalid run id %d", c.Global.RunID)
	}
	return network.Location{NetworkID: c.Global.NetworkID, RunID: c.Global.RunID}, nil
}

// StartTime returns the clock time of step 0
func (c *Config) StartTime() (time.Duration, error) {
	if c.Playback.StartTime == "" {
		return engine.DefaultStartTime, nil
	}
	sec, err := ingestor.ParseDuration(c.Playback.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid startTime %q: %w", c.Playback.StartTime, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Highlight returns the hover color, or nil for the default
func (c *Config) Highlight() *scale.RGB {
	if c.Style.Highlight == "" {
		return nil
	}
	rgb, err := scale.ParseHex(c.Style.Highlight)
	if err != nil {
		return nil
	}
	return &rgb
}

// FieldKeys returns the configured field keys sorted
func (c *Config) FieldKeys() []string {
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry builds the field registry: defaults, then [style] colors, then [fields.*]
func (c *Config) Registry() (*engine.Registry, error) {
	r := engine.DefaultRegistry()
	for _, d := range r.Descriptors() {
		if err := c.applyStyleColors(&d); err != nil {
			return nil, err
		}
		r.Add(d)
	}
	for _, key := range c.FieldKeys() {
		base, _ := r.Get(key)
		d, err := c.descriptor(key, c.Fields[key], base)
		if err != nil {
			return nil, err
		}
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FilePaths maps field keys to offline data files from fieldFiles and [fields.*].file
func (c *Config) FilePaths() map[string]string {
	paths := make(map[string]string, len(c.Global.FieldFiles))
	for k, v := range c.Global.FieldFiles {
		paths[k] = v
	}
	for k, f := range c.Fields {
		if f.File != "" {
			paths[k] = f.File
		}
	}
	return paths
}

func (c *Config) applyStyleColors(d *engine.Descriptor) error {
	if c.Style.Color1 != "" {
		rgb, err := scale.ParseHex(c.Style.Color1)
		if err != nil {
			return fmt.Errorf("style: %w", err)
		}
		d.Color1 = rgb
	}
	if c.Style.Color2 != "" {
		rgb, err := scale.ParseHex(c.Style.Color2)
		if err != nil {
			return fmt.Errorf("style: %w", err)
		}
		d.Color2 = rgb
	}
	return nil
}

func (c *Config) descriptor(key string, f *FieldConfig, base *engine.Descriptor) (engine.Descriptor, error) {
	var d engine.Descriptor
	if base != nil {
		d = *base
	} else {
		d = engine.Descriptor{Key: key, Color1: defaultColor1, Color2: defaultColor2}
		if err := c.applyStyleColors(&d); err != nil {
			return d, err
		}
	}
	if key == "" || key == engine.DefaultKey {
		return d, fmt.Errorf("invalid field key %q", key)
	}

	if f.Label != "" {
		d.Label = f.Label
	}
	if f.Source != "" {
		d.Source = f.Source
	}
	if f.Kind != "" {
		kind, err := engine.ParseKind(f.Kind)
		if err != nil {
			return d, fmt.Errorf("field %q: %w", key, err)
		}
		d.Kind = kind
	}
	if f.Policy != "" {
		policy, err := scale.ParsePolicy(f.Policy)
		if err != nil {
			return d, fmt.Errorf("field %q: %w", key, err)
		}
		d.Policy = policy
	}
	if f.Shape != "" {
		shape, err := ingestor.ParseShape(f.Shape)
		if err != nil {
			return d, fmt.Errorf("field %q: %w", key, err)
		}
		d.Shape = shape
	}
	if f.Color1 != "" {
		rgb, err := scale.ParseHex(f.Color1)
		if err != nil {
			return d, fmt.Errorf("field %q: %w", key, err)
		}
		d.Color1 = rgb
	}
	if f.Color2 != "" {
		rgb, err := scale.ParseHex(f.Color2)
		if err != nil {
			return d, fmt.Errorf("field %q: %w", key, err)
		}
		d.Color2 = rgb
	}
	return d, nil
}
