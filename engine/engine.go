// Package engine coordinates field selection, styling and playback.
//
// Every exported method must run on the engine's scheduler loop. Fetches run
// on their own goroutines and post their completion back onto the loop, where
// completions for an outdated selection are dropped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/MetropolisTHEMA/metroviz/cache"
	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/loop"
	"github.com/MetropolisTHEMA/metroviz/metrics"
	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/playback"
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/MetropolisTHEMA/metroviz/style"
)

const (
	DefaultStartTime   = 6 * time.Hour
	DefaultStepMinutes = 15
)

var ErrNoField = errors.New("no field selected")

// EventKind tells listeners what changed
type EventKind int

const (
	EventSelected EventKind = iota // selection changed, data may still be loading
	EventActivated                 // field data painted for the first time
	EventStep                      // a time step was painted
	EventPlayback                  // playback status changed
	EventError                     // a fetch or activation failed
)

// Event is delivered on the loop after the change it describes
type Event struct {
	Kind   EventKind
	Field  string
	Step   int
	Status playback.Status
	Err    error
}

// Config wires an engine. Scheduler, Source, Network and Surface are required.
type Config struct {
	Scheduler   loop.Scheduler
	Source      ingestor.Source
	Network     *network.Network
	Surface     render.Surface
	Registry    *Registry
	Logger      *log.Logger
	Metrics     *metrics.Metrics
	Interval    time.Duration
	Loop        bool
	Bands       int
	Highlight   *scale.RGB
	StartTime   time.Duration // clock time of step 0
	StepMinutes int
}

type activeField struct {
	desc *Descriptor
	data ingestor.FieldData
	step int
}

// Engine is the selector and event coordinator
type Engine struct {
	sched    loop.Scheduler
	src      ingestor.Source
	net      *network.Network
	surface  render.Surface
	registry *Registry
	cache    *cache.Cache
	styler   *style.Applicator
	player   *playback.Controller
	logger   *log.Logger
	metrics  *metrics.Metrics

	startTime   time.Duration
	stepMinutes int

	ctx    context.Context
	cancel context.CancelFunc

	selected string
	gen      uint64
	active   *activeField
	label    string

	// OnEvent, when set, is called on the loop for every Event
	OnEvent func(Event)
}

func New(cfg Config) (*Engine, error) {
	if cfg.Scheduler == nil || cfg.Source == nil || cfg.Network == nil || cfg.Surface == nil {
		return nil, fmt.Errorf("engine: scheduler, source, network and surface are required")
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.StartTime <= 0 {
		cfg.StartTime = DefaultStartTime
	}
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = DefaultStepMinutes
	}
	highlight := style.DefaultHighlight
	if cfg.Highlight != nil {
		highlight = *cfg.Highlight
	}

	e := &Engine{
		sched:       cfg.Scheduler,
		src:         cfg.Source,
		net:         cfg.Network,
		surface:     cfg.Surface,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		startTime:   cfg.StartTime,
		stepMinutes: cfg.StepMinutes,
		selected:    DefaultKey,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.cache = cache.New(e.fetch, cfg.Metrics)
	e.styler = style.New(cfg.Surface, legend.NewRenderer(cfg.Surface, cfg.Bands), cfg.Network, highlight)

	e.player = playback.New(cfg.Scheduler, cfg.Interval, cfg.Loop)
	e.player.OnTick = func(int) { e.metrics.Ticks.Inc() }
	e.player.OnStop = func() { e.emit(Event{Kind: EventPlayback, Field: e.activeKey(), Status: playback.Stopped}) }
	return e, nil
}

func (e *Engine) fetch(ctx context.Context, key string) (ingestor.FieldData, error) {
	// the registry is not modified after construction, only descriptor colors are
	d, ok := e.registry.Get(key)
	if !ok {
		return ingestor.FieldData{}, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return e.src.Fetch(ctx, d.Query())
}

// Close cancels in-flight fetches and stops playback. It must run on the loop.
func (e *Engine) Close() {
	e.cancel()
	e.player.Stop()
}

// Registry returns the field registry
func (e *Engine) Registry() *Registry { return e.registry }

// Network returns the displayed network
func (e *Engine) Network() *network.Network { return e.net }

// Cache returns the attribute cache
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Playback returns the playback state
func (e *Engine) Playback() playback.State { return e.player.State() }

// Selected returns the last selected key, which may still be loading
func (e *Engine) Selected() string { return e.selected }

// Active returns the key of the field currently painted, or DefaultKey
func (e *Engine) Active() string { return e.activeKey() }

// Scale returns the scale currently painted, nil in default mode
func (e *Engine) Scale() *scale.Scale { return e.styler.Scale() }

// TimeLabel returns the label of the painted step, empty for static fields
func (e *Engine) TimeLabel() string { return e.label }

// Value returns the painted value of an edge in field mode
func (e *Engine) Value(id string) (float64, bool) { return e.styler.Value(id) }

// Color returns the color the current mode gives an edge, ignoring hover
func (e *Engine) Color(id string) (scale.RGB, bool) {
	edge, ok := e.net.Edge(id)
	if !ok {
		return scale.RGB{}, false
	}
	return e.styler.ColorOf(edge), true
}

// Field returns a copy of the active descriptor and the number of steps of its
// data (0 for static fields)
func (e *Engine) Field() (Descriptor, int, bool) {
	if e.active == nil {
		return Descriptor{}, 0, false
	}
	return *e.active.desc, e.active.data.Steps, true
}

// Step returns the painted step of the active time-indexed field
func (e *Engine) Step() int {
	if e.active == nil {
		return 0
	}
	return e.active.step
}

// Select changes the displayed field. Playback stops before anything else
// happens. A cache hit activates immediately; a miss fetches in the
// background and activates when the result reaches the loop, unless another
// selection happened in between.
func (e *Engine) Select(key string) error {
	d, gen, err := e.begin(key)
	if err != nil || d == nil {
		return err
	}

	if _, ok := e.cache.Get(key); ok {
		data, err := e.cache.Load(e.ctx, key)
		e.complete(gen, d, data, err)
		return nil
	}

	ctx := e.ctx
	go func() {
		data, err := e.cache.Load(ctx, key)
		e.sched.Post(func() { e.complete(gen, d, data, err) })
	}()
	return nil
}

// Activate selects key and loads its data on the calling goroutine.
// It is meant for one-shot use without a running loop, such as exports.
func (e *Engine) Activate(ctx context.Context, key string) error {
	d, gen, err := e.begin(key)
	if err != nil || d == nil {
		return err
	}
	data, err := e.cache.Load(ctx, key)
	return e.complete(gen, d, data, err)
}

// begin stops playback and starts a new selection. It returns a nil
// descriptor for the default key, which is applied immediately.
func (e *Engine) begin(key string) (*Descriptor, uint64, error) {
	if key == "" {
		key = DefaultKey
	}
	var d *Descriptor
	if key != DefaultKey {
		var ok bool
		if d, ok = e.registry.Get(key); !ok {
			return nil, 0, fmt.Errorf("select %q: %w", key, ErrUnknownField)
		}
	}

	e.player.Stop()
	e.gen++
	e.selected = key
	e.emit(Event{Kind: EventSelected, Field: key})

	if d == nil {
		e.active = nil
		e.label = ""
		e.surface.SetTimeLabel("")
		e.styler.ApplyDefault()
		e.emit(Event{Kind: EventActivated, Field: DefaultKey})
	}
	return d, e.gen, nil
}

func (e *Engine) complete(gen uint64, d *Descriptor, data ingestor.FieldData, err error) error {
	if gen != e.gen {
		e.metrics.StaleResults.Inc()
		e.logger.Printf("debug: dropping stale result for %s", d.Key)
		return nil
	}
	if err != nil {
		e.logger.Printf("fetch %s: %v", d.Key, err)
		e.emit(Event{Kind: EventError, Field: d.Key, Err: err})
		return err
	}
	return e.activate(d, data)
}

// activate paints freshly loaded data. The field only becomes active once
// its first paint succeeded; on failure the default colors are shown.
func (e *Engine) activate(d *Descriptor, data ingestor.FieldData) error {
	// a timer restarted on the previous field while this one loaded must not survive
	e.player.Stop()
	e.active = nil
	e.label = ""
	e.surface.SetTimeLabel("")

	f := &activeField{desc: d, data: data}
	if d.Kind == Static {
		if _, err := e.styler.ApplyStatic(d.Mapping(), data.Static); err != nil {
			return e.fail(d, err)
		}
		e.active = f
		e.emit(Event{Kind: EventActivated, Field: d.Key})
		return nil
	}

	if err := e.player.Start(data.Steps, e.stepper(f)); err != nil {
		e.styler.ApplyDefault()
		return e.fail(d, err)
	}
	e.active = f
	// paint step 0 now instead of one interval later
	e.player.Tick()
	e.emit(Event{Kind: EventActivated, Field: d.Key})
	e.emit(Event{Kind: EventPlayback, Field: d.Key, Status: e.player.Status()})
	return nil
}

func (e *Engine) fail(d *Descriptor, err error) error {
	err = fmt.Errorf("activate %s: %w", d.Key, err)
	e.logger.Print(err)
	e.emit(Event{Kind: EventError, Field: d.Key, Err: err})
	return err
}

func (e *Engine) stepper(f *activeField) playback.StepFunc {
	return func(i int) {
		f.step = i
		e.paintStep(f)
		e.emit(Event{Kind: EventStep, Field: f.desc.Key, Step: i, Status: e.player.Status()})
	}
}

func (e *Engine) paintStep(f *activeField) {
	e.label = e.stepLabel(f.data, f.step)
	e.surface.SetTimeLabel(e.label)
	if _, err := e.styler.ApplyStep(f.desc.Mapping(), f.data.Series, f.step); err != nil {
		e.logger.Printf("paint %s step %d: %v", f.desc.Key, f.step, err)
	}
}

func (e *Engine) stepLabel(data ingestor.FieldData, i int) string {
	if l, ok := data.Label(i); ok {
		return l
	}
	at := e.startTime + time.Duration(i*e.stepMinutes)*time.Minute
	return ingestor.FormatClock(at.Seconds())
}

// SetBoundaryColor sets color 1 (low end) or 2 (high end) of the current
// field and repaints it. Invalid input keeps the previous color.
func (e *Engine) SetBoundaryColor(which int, text string) error {
	if which != 1 && which != 2 {
		return fmt.Errorf("boundary color index %d: must be 1 or 2", which)
	}
	c, err := scale.ParseHex(text)
	if err != nil {
		return fmt.Errorf("boundary color %d: %w", which, err)
	}

	d := e.currentDescriptor()
	if d == nil {
		return ErrNoField
	}
	if which == 1 {
		d.Color1 = c
	} else {
		d.Color2 = c
	}

	f := e.active
	if f == nil || f.desc != d {
		return nil
	}
	if d.Kind == Static {
		if _, err := e.styler.ApplyStatic(d.Mapping(), f.data.Static); err != nil {
			e.logger.Printf("repaint %s: %v", d.Key, err)
		}
		return nil
	}
	e.paintStep(f)
	return nil
}

// BoundaryColors returns the colors of the current field
func (e *Engine) BoundaryColors() (scale.RGB, scale.RGB, bool) {
	d := e.currentDescriptor()
	if d == nil {
		return scale.RGB{}, scale.RGB{}, false
	}
	return d.Color1, d.Color2, true
}

func (e *Engine) currentDescriptor() *Descriptor {
	if d, ok := e.registry.Get(e.selected); ok {
		return d
	}
	return nil
}

// TogglePause pauses a running playback, resumes a paused one and replays a
// stopped one. It returns the resulting status.
func (e *Engine) TogglePause() playback.Status {
	if e.loading() {
		return e.player.Status()
	}
	switch e.player.Status() {
	case playback.Running:
		e.player.Pause()
	case playback.Paused:
		e.player.Resume()
	default:
		e.Replay()
		return e.player.Status()
	}
	e.emit(Event{Kind: EventPlayback, Field: e.activeKey(), Status: e.player.Status()})
	return e.player.Status()
}

// Seek paints step i of the current time-indexed field without changing the playback status
func (e *Engine) Seek(i int) error {
	if !e.playable() {
		return fmt.Errorf("seek: %w", ErrNoField)
	}
	return e.player.Seek(i)
}

// StepBy moves delta steps from the painted step
func (e *Engine) StepBy(delta int) error {
	if !e.playable() {
		return fmt.Errorf("seek: %w", ErrNoField)
	}
	return e.player.Seek(e.active.step + delta)
}

// StopPlayback stops and rewinds to step 0
func (e *Engine) StopPlayback() {
	e.player.Stop()
	if e.playable() {
		e.player.Seek(0)
	}
	e.emit(Event{Kind: EventPlayback, Field: e.activeKey(), Status: playback.Stopped})
}

// Replay restarts the current time-indexed field from step 0
func (e *Engine) Replay() error {
	if !e.playable() {
		return fmt.Errorf("replay: %w", ErrNoField)
	}
	f := e.active
	if err := e.player.Start(f.data.Steps, e.stepper(f)); err != nil {
		return err
	}
	e.player.Tick()
	e.emit(Event{Kind: EventPlayback, Field: f.desc.Key, Status: e.player.Status()})
	return nil
}

func (e *Engine) HoverEnter(id string) { e.styler.HoverEnter(id) }

func (e *Engine) HoverExit(id string) { e.styler.HoverExit(id) }

// Tooltip describes an edge, including its current value when a field is painted
func (e *Engine) Tooltip(id string) (string, bool) {
	edge, ok := e.net.Edge(id)
	if !ok {
		return "", false
	}
	text := edge.Tooltip()
	if f := e.active; f != nil {
		if v, ok := e.styler.Value(id); ok {
			decimals := 2
			if v == float64(int64(v)) {
				decimals = 0
			}
			text += fmt.Sprintf("\n%s: %s", f.desc.Label, legend.FormatValue(v, decimals))
		} else {
			text += fmt.Sprintf("\n%s: no data", f.desc.Label)
		}
		if e.label != "" {
			text += fmt.Sprintf(" (%s)", e.label)
		}
	}
	return text, true
}

func (e *Engine) timeIndexed() bool {
	return e.active != nil && e.active.desc.Kind == TimeIndexed
}

// loading reports whether the last selection has not been painted yet.
// Playback controls refuse to act on the previous field meanwhile.
func (e *Engine) loading() bool {
	return e.selected != e.activeKey()
}

func (e *Engine) playable() bool {
	return e.timeIndexed() && !e.loading()
}

func (e *Engine) activeKey() string {
	if e.active == nil {
		return DefaultKey
	}
	return e.active.desc.Key
}

func (e *Engine) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}
