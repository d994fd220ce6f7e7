package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/loop"
	"github.com/MetropolisTHEMA/metroviz/metrics"
	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/playback"
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/MetropolisTHEMA/metroviz/style"
	"github.com/MetropolisTHEMA/metroviz/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

type harness struct {
	engine  *Engine
	sched   *loop.Manual
	surface *render.Memory
	server  *testutil.Server
	metrics *metrics.Metrics
	events  []Event
}

func newHarness(t *testing.T, loopPlayback bool, registry *Registry) *harness {
	t.Helper()

	srv := testutil.NewServer(t, testutil.DefaultRoutes())
	n, err := ingestor.ParseFeatureCollection([]byte(testutil.NetworkGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		sched:   loop.NewManual(),
		surface: render.NewMemory(),
		server:  srv,
		metrics: metrics.New(),
	}
	e, err := New(Config{
		Scheduler: h.sched,
		Source:    ingestor.NewClient(srv.URL, network.Location{NetworkID: 1, RunID: 1}, 5*time.Second, nil),
		Network:   n,
		Surface:   h.surface,
		Registry:  registry,
		Metrics:   h.metrics,
		Interval:  time.Second,
		Loop:      loopPlayback,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.OnEvent = func(ev Event) { h.events = append(h.events, ev) }
	t.Cleanup(e.Close)
	h.engine = e
	return h
}

// settle waits for one fetch completion and runs it on the loop
func (h *harness) settle(t *testing.T) {
	t.Helper()
	if !h.sched.Wait(5 * time.Second) {
		t.Fatal("no fetch completion was posted")
	}
	h.sched.Drain()
}

func (h *harness) selectAndSettle(t *testing.T, key string) {
	t.Helper()
	if err := h.engine.Select(key); err != nil {
		t.Fatalf("Select(%q): %v", key, err)
	}
	h.settle(t)
}

func (h *harness) color(t *testing.T, id string) scale.RGB {
	t.Helper()
	c, ok := h.surface.Color(id)
	if !ok {
		t.Fatalf("edge %s was never painted", id)
	}
	return c
}

func TestSelect_StaticMissThenHit(t *testing.T) {
	h := newHarness(t, false, nil)
	h.selectAndSettle(t, "lanes")

	if c := h.color(t, "1"); c != scale.MustParseHex("#fff500") {
		t.Errorf("edge 1 holds the minimum and should get color1, got %v", c)
	}
	if c := h.color(t, "2"); c != scale.MustParseHex("#ff0000") {
		t.Errorf("edge 2 holds the maximum and should get color2, got %v", c)
	}
	if c := h.color(t, "3"); c != network.FallbackColor {
		t.Errorf("edge 3 has no lanes value and should keep its default color, got %v", c)
	}
	if len(h.surface.Legends()) != 1 {
		t.Errorf("expected one legend, got %d", len(h.surface.Legends()))
	}

	if err := h.engine.Select(DefaultKey); err != nil {
		t.Fatal(err)
	}
	if c := h.color(t, "1"); c != scale.MustParseHex("#aaaaaa") {
		t.Errorf("default selection should restore feature colors, got %v", c)
	}
	if len(h.surface.Legends()) != 0 {
		t.Error("default selection should remove the legend")
	}

	// second selection is served from the cache, synchronously
	if err := h.engine.Select("lanes"); err != nil {
		t.Fatal(err)
	}
	if h.engine.Active() != "lanes" {
		t.Errorf("cache hit should activate immediately, active=%q", h.engine.Active())
	}
	if hits := h.server.Hits("/api/network/1/edges/lanes"); hits != 1 {
		t.Errorf("expected one request for lanes, got %d", hits)
	}
}

func TestSelect_UnknownField(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.engine.Select("colour"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestSelect_TimeIndexedPlaysOnce(t *testing.T) {
	h := newHarness(t, false, nil)
	h.selectAndSettle(t, "speed_output")

	if h.engine.TimeLabel() != "06:00" || h.surface.TimeLabel() != "06:00" {
		t.Fatalf("step 0 should be painted on activation, label %q", h.surface.TimeLabel())
	}
	if st := h.engine.Playback(); st.Status != playback.Running || st.Length != 3 {
		t.Fatalf("unexpected playback state %+v", st)
	}
	if d := h.engine.Scale().Domain(); d.Min != 10 || d.Max != 90 {
		t.Errorf("time-indexed fields use the global domain by default, got %+v", d)
	}
	if c := h.color(t, "2"); c == scale.MustParseHex("#bbbbbb") {
		t.Error("edge 2 has a value at step 0")
	}

	h.sched.Fire()
	if h.surface.TimeLabel() != "06:15" {
		t.Errorf("expected 06:15, got %q", h.surface.TimeLabel())
	}
	if c := h.color(t, "2"); c != scale.MustParseHex("#bbbbbb") {
		t.Errorf("edge 2 is missing at step 1 and should use its default color, got %v", c)
	}

	h.sched.Fire()
	if h.surface.TimeLabel() != "06:30" {
		t.Errorf("expected 06:30, got %q", h.surface.TimeLabel())
	}
	if st := h.engine.Playback(); st.Status != playback.Stopped || st.Index != 0 {
		t.Errorf("non-looping playback should stop at the end, got %+v", st)
	}
	if fired := h.sched.Fire(); fired != 0 {
		t.Error("no tick may fire after the end")
	}
	if got := promtest.ToFloat64(h.metrics.Ticks); got != 3 {
		t.Errorf("expected 3 painted steps, got %v", got)
	}
}

func TestSelect_StopsPlaybackSynchronously(t *testing.T) {
	h := newHarness(t, true, nil)
	h.selectAndSettle(t, "speed_output")
	if h.sched.ActiveTimers() != 1 {
		t.Fatalf("expected one playback timer, got %d", h.sched.ActiveTimers())
	}

	if err := h.engine.Select("lanes"); err != nil {
		t.Fatal(err)
	}
	if h.engine.Playback().Status != playback.Stopped || h.sched.ActiveTimers() != 0 {
		t.Fatal("selecting another field must stop playback before returning")
	}
	h.settle(t)
	if h.engine.Active() != "lanes" {
		t.Errorf("expected lanes active, got %q", h.engine.Active())
	}
	if fired := h.sched.Fire(); fired != 0 || h.surface.TimeLabel() != "" {
		t.Error("a cancelled timer painted a step")
	}
}

func TestSelect_StaleResultDropped(t *testing.T) {
	h := newHarness(t, true, nil)
	release := h.server.Hold("/api/run/1/edges_results/speed")
	defer release()

	h.engine.Select("speed_output")
	h.engine.Select("lanes")
	h.settle(t) // lanes completes while speed is held
	if h.engine.Active() != "lanes" {
		t.Fatalf("expected lanes active, got %q", h.engine.Active())
	}
	colors := h.surface.Colors()

	release()
	h.settle(t)

	if h.engine.Active() != "lanes" {
		t.Errorf("stale result replaced the selection: active=%q", h.engine.Active())
	}
	if h.engine.Playback().Status != playback.Stopped || h.sched.ActiveTimers() != 0 {
		t.Error("stale time-indexed result must not start playback")
	}
	for id, c := range colors {
		if got := h.color(t, id); got != c {
			t.Errorf("edge %s repainted by a stale result: %v -> %v", id, c, got)
		}
	}
	if got := promtest.ToFloat64(h.metrics.StaleResults); got != 1 {
		t.Errorf("expected 1 stale result, got %v", got)
	}
}

func TestSelect_ControlsIgnoredWhileLoading(t *testing.T) {
	h := newHarness(t, true, nil)
	h.selectAndSettle(t, "speed_output")

	release := h.server.Hold("/api/network/1/edges/lanes")
	defer release()
	if err := h.engine.Select("lanes"); err != nil {
		t.Fatal(err)
	}

	if st := h.engine.TogglePause(); st != playback.Stopped || h.sched.ActiveTimers() != 0 {
		t.Fatalf("toggle while lanes loads restarted the previous field: %s, timers=%d", st, h.sched.ActiveTimers())
	}
	if err := h.engine.Replay(); !errors.Is(err, ErrNoField) {
		t.Errorf("replay while loading: expected ErrNoField, got %v", err)
	}
	if err := h.engine.Seek(1); !errors.Is(err, ErrNoField) {
		t.Errorf("seek while loading: expected ErrNoField, got %v", err)
	}
	if err := h.engine.StepBy(1); !errors.Is(err, ErrNoField) {
		t.Errorf("step while loading: expected ErrNoField, got %v", err)
	}
	h.engine.StopPlayback()
	if h.sched.ActiveTimers() != 0 {
		t.Error("stop while loading must not arm a timer")
	}

	release()
	h.settle(t)
	if h.engine.Active() != "lanes" || h.sched.ActiveTimers() != 0 {
		t.Fatalf("expected lanes active without timers, active=%q timers=%d", h.engine.Active(), h.sched.ActiveTimers())
	}
	colors := h.surface.Colors()

	if fired := h.sched.Fire(); fired != 0 {
		t.Errorf("%d ticks of the previous field fired after lanes was painted", fired)
	}
	for id, c := range colors {
		if got := h.color(t, id); got != c {
			t.Errorf("edge %s repainted after lanes took over: %v -> %v", id, c, got)
		}
	}
	if h.surface.TimeLabel() != "" || h.engine.Scale().Domain() != (scale.Domain{Min: 1, Max: 4}) {
		t.Errorf("lanes should own the legend, label %q domain %+v", h.surface.TimeLabel(), h.engine.Scale().Domain())
	}
}

func TestSelect_EmptyStaticField(t *testing.T) {
	h := newHarness(t, false, nil)
	h.server.Route("/api/network/1/edges/lanes", `{}`)
	h.selectAndSettle(t, "lanes")

	if h.engine.Active() != DefaultKey {
		t.Errorf("a field without values must not become active, active=%q", h.engine.Active())
	}
	if _, _, ok := h.engine.Field(); ok {
		t.Error("Field should report nothing after a failed activation")
	}
	if c := h.color(t, "1"); c != scale.MustParseHex("#aaaaaa") {
		t.Errorf("expected the default color, got %v", c)
	}
	if tip, _ := h.engine.Tooltip("1"); strings.Contains(tip, "Lanes") {
		t.Errorf("tooltip should not mention the failed field: %q", tip)
	}
	last := h.events[len(h.events)-1]
	if last.Kind != EventError || !errors.Is(last.Err, scale.ErrEmptyDomain) {
		t.Errorf("expected an empty domain event, got %+v", last)
	}

	if err := h.engine.Activate(context.Background(), "lanes"); !errors.Is(err, scale.ErrEmptyDomain) {
		t.Errorf("Activate should report the empty domain, got %v", err)
	}
}

func TestSelect_FetchFailureKeepsVisuals(t *testing.T) {
	h := newHarness(t, false, nil)
	h.selectAndSettle(t, "lanes")
	before := h.surface.Colors()
	legends := h.surface.Legends()

	h.server.Fail("/api/run/1/edges_results/speed", http.StatusInternalServerError)
	h.selectAndSettle(t, "speed_output")

	after := h.surface.Colors()
	for id, c := range before {
		if after[id] != c {
			t.Errorf("edge %s changed after a failed fetch: %v -> %v", id, c, after[id])
		}
	}
	if got := h.surface.Legends(); len(got) != 1 || len(got[0].Bands) != len(legends[0].Bands) {
		t.Error("legend should be untouched")
	}
	if h.engine.Active() != "lanes" || h.engine.Selected() != "speed_output" {
		t.Errorf("unexpected active=%q selected=%q", h.engine.Active(), h.engine.Selected())
	}
	if _, ok := h.engine.Cache().Get("speed_output"); ok {
		t.Error("failed fetch must not be cached")
	}
	last := h.events[len(h.events)-1]
	if last.Kind != EventError || !errors.Is(last.Err, ingestor.ErrFetchFailure) {
		t.Errorf("expected a fetch failure event, got %+v", last)
	}

	h.server.Recover("/api/run/1/edges_results/speed")
	h.selectAndSettle(t, "speed_output")
	if h.engine.Active() != "speed_output" {
		t.Errorf("retry should activate the field, active=%q", h.engine.Active())
	}
}

func TestSetBoundaryColor(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.engine.SetBoundaryColor(1, "#000000"); !errors.Is(err, ErrNoField) {
		t.Errorf("expected ErrNoField in default mode, got %v", err)
	}

	h.selectAndSettle(t, "lanes")
	if err := h.engine.SetBoundaryColor(1, "not-a-color"); !errors.Is(err, scale.ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
	if c := h.color(t, "1"); c != scale.MustParseHex("#fff500") {
		t.Errorf("invalid input must keep the previous color, got %v", c)
	}

	if err := h.engine.SetBoundaryColor(1, "#000000"); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.SetBoundaryColor(2, "00ff00"); err != nil {
		t.Fatal(err)
	}
	if c := h.color(t, "1"); c != scale.MustParseHex("#000000") {
		t.Errorf("color1 change should repaint, got %v", c)
	}
	if c := h.color(t, "2"); c != scale.MustParseHex("#00ff00") {
		t.Errorf("color2 change should repaint, got %v", c)
	}
	if len(h.surface.Legends()) != 1 {
		t.Error("repaint must replace the legend")
	}
	if c1, c2, ok := h.engine.BoundaryColors(); !ok || c1.Hex() != "#000000" || c2.Hex() != "#00ff00" {
		t.Errorf("unexpected boundary colors %v %v", c1, c2)
	}
	if err := h.engine.SetBoundaryColor(3, "#000000"); err == nil {
		t.Error("only boundaries 1 and 2 exist")
	}
}

func TestSetBoundaryColor_KeepsStep(t *testing.T) {
	h := newHarness(t, true, nil)
	h.selectAndSettle(t, "speed_output")
	h.engine.TogglePause()
	if err := h.engine.Seek(1); err != nil {
		t.Fatal(err)
	}

	if err := h.engine.SetBoundaryColor(2, "#ffffff"); err != nil {
		t.Fatal(err)
	}
	if h.surface.TimeLabel() != "06:15" {
		t.Errorf("repaint should stay on the current step, got %q", h.surface.TimeLabel())
	}
	if st := h.engine.Playback(); st.Status != playback.Paused || st.Index != 1 {
		t.Errorf("color change must not touch playback, got %+v", st)
	}
	if _, c2 := h.engine.Scale().Colors(); c2 != scale.MustParseHex("#ffffff") {
		t.Errorf("scale should use the new color, got %v", c2)
	}
}

func TestPlaybackControls(t *testing.T) {
	h := newHarness(t, true, nil)
	if err := h.engine.Seek(1); !errors.Is(err, ErrNoField) {
		t.Errorf("seek without a time-indexed field: expected ErrNoField, got %v", err)
	}

	h.selectAndSettle(t, "congestion")
	if h.engine.Playback().Status != playback.Running {
		t.Fatal("expected running playback")
	}

	if st := h.engine.TogglePause(); st != playback.Paused || h.sched.ActiveTimers() != 0 {
		t.Fatalf("toggle should pause and drop the timer, got %s", st)
	}
	if err := h.engine.Seek(5); err != nil {
		t.Fatal(err)
	}
	if h.surface.TimeLabel() != "06:15" || h.engine.Playback().Status != playback.Paused {
		t.Errorf("seek should clamp to the last step and keep the status")
	}
	if err := h.engine.StepBy(-1); err != nil || h.surface.TimeLabel() != "06:00" {
		t.Errorf("StepBy(-1) should go back one step, label %q err %v", h.surface.TimeLabel(), err)
	}

	if st := h.engine.TogglePause(); st != playback.Running {
		t.Fatalf("toggle should resume, got %s", st)
	}
	h.engine.StopPlayback()
	if st := h.engine.Playback(); st.Status != playback.Stopped || st.Index != 0 || h.surface.TimeLabel() != "06:00" {
		t.Errorf("stop should rewind to step 0, got %+v label %q", st, h.surface.TimeLabel())
	}

	if st := h.engine.TogglePause(); st != playback.Running {
		t.Errorf("toggle from stopped should replay, got %s", st)
	}
	if h.sched.ActiveTimers() != 1 {
		t.Errorf("replay must own exactly one timer, got %d", h.sched.ActiveTimers())
	}
	if err := h.engine.Replay(); err != nil || h.sched.ActiveTimers() != 1 {
		t.Errorf("second replay must replace the timer, err %v timers %d", err, h.sched.ActiveTimers())
	}
}

func TestRecordsShapeTimeLabels(t *testing.T) {
	registry := DefaultRegistry()
	d, _ := registry.Get("travel_time")
	d.Shape = ingestor.ShapeRecords

	h := newHarness(t, false, registry)
	h.selectAndSettle(t, "travel_time")

	if h.surface.TimeLabel() != "06:00" {
		t.Errorf("expected label from data, got %q", h.surface.TimeLabel())
	}
	if dom := h.engine.Scale().Domain(); dom.Min != 14 || dom.Max != 25 {
		t.Errorf("durations should be seconds, got %+v", dom)
	}
	if h.server.Hits("/api/run/1/edges_results/") != 1 {
		t.Error("records shape should use the result listing")
	}
}

func TestHoverAndTooltip(t *testing.T) {
	h := newHarness(t, false, nil)
	h.selectAndSettle(t, "lanes")

	h.engine.HoverEnter("1")
	if c := h.color(t, "1"); c != style.DefaultHighlight {
		t.Errorf("hover should highlight, got %v", c)
	}
	h.engine.HoverExit("1")
	if c := h.color(t, "1"); c != scale.MustParseHex("#fff500") {
		t.Errorf("exit should restore the scale color, got %v", c)
	}

	tip, ok := h.engine.Tooltip("1")
	if !ok {
		t.Fatal("edge 1 should have a tooltip")
	}
	if missing, ok := testutil.Contains(tip, "name: Rue de Rivoli", "length: 120.50", "Lanes: 1"); !ok {
		t.Errorf("tooltip %q missing %q", tip, missing)
	}
	if tip, _ := h.engine.Tooltip("3"); !strings.Contains(tip, "Lanes: no data") {
		t.Errorf("tooltip for an edge without value: %q", tip)
	}
	if _, ok := h.engine.Tooltip("42"); ok {
		t.Error("unknown edge should have no tooltip")
	}
}

func TestActivate_LoadsOnCallingGoroutine(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.engine.Activate(context.Background(), "speed_output"); err != nil {
		t.Fatal(err)
	}
	if h.engine.Active() != "speed_output" {
		t.Fatalf("expected speed_output to be active, got %q", h.engine.Active())
	}
	d, steps, ok := h.engine.Field()
	if !ok || d.Key != "speed_output" || steps != 3 {
		t.Errorf("unexpected field %q with %d steps", d.Key, steps)
	}
	if h.engine.Step() != 0 || h.engine.TimeLabel() != "06:00" {
		t.Errorf("expected step 0 at 06:00, got %d at %q", h.engine.Step(), h.engine.TimeLabel())
	}
	if c := h.color(t, "1"); c == scale.MustParseHex("#aaaaaa") {
		t.Error("edge 1 should be painted from the field")
	}
}

func TestActivate_Errors(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.engine.Activate(context.Background(), "colour"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}

	h.server.Fail("/api/run/1/edges_results/speed", http.StatusInternalServerError)
	if err := h.engine.Activate(context.Background(), "speed_output"); !errors.Is(err, ingestor.ErrFetchFailure) {
		t.Errorf("expected a fetch failure, got %v", err)
	}
	if h.engine.Active() != DefaultKey {
		t.Errorf("a failed activation must keep the previous field, active=%q", h.engine.Active())
	}
	if _, _, ok := h.engine.Field(); ok {
		t.Error("no field should be reported after a failed first activation")
	}
}
