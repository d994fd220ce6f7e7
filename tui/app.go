package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MetropolisTHEMA/metroviz/engine"
	"github.com/MetropolisTHEMA/metroviz/legend"
	"github.com/MetropolisTHEMA/metroviz/loop"
	"github.com/MetropolisTHEMA/metroviz/playback"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// edgeRow is one line of the edge table
type edgeRow struct {
	ID    string
	Name  string
	Value string
	Color scale.RGB
}

// viewState is what the panels show. It is built on the engine loop and
// read by the UI goroutine.
type viewState struct {
	selected  string
	active    string
	label     string
	playback  playback.State
	step      int
	timeLabel string
	rows      []edgeRow
	tooltip   string
	message   string
}

// App is the interactive terminal map
type App struct {
	app     *tview.Application
	pages   *tview.Pages
	loop    *loop.Loop
	eng     *engine.Engine
	surface *Surface
	rasters *RasterCache

	fields  *tview.List
	mapView *tview.TextView
	edges   *tview.Table
	tooltip *tview.TextView
	legend  *tview.TextView
	status  *tview.TextView

	initial string
	stopped atomic.Bool

	// Shared state written on the loop, read on the UI goroutine
	mu    sync.Mutex
	state viewState

	// loop-only
	hovered string
	message string
}

// NewApp builds the engine on its own loop and a terminal UI around it.
// cfg.Scheduler and cfg.Surface are provided by the app.
func NewApp(cfg engine.Config, initial string) (*App, error) {
	a := &App{
		app:     tview.NewApplication(),
		pages:   tview.NewPages(),
		loop:    loop.New(),
		initial: initial,
	}
	a.surface = NewSurface(func() { a.queue(a.drawSurface) })

	cfg.Scheduler = a.loop
	cfg.Surface = a.surface
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	a.eng = eng
	a.eng.OnEvent = a.onEvent
	a.rasters = NewRasterCache(cfg.Network)

	a.setupUI()
	return a, nil
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.fields = tview.NewList().ShowSecondaryText(false)
	a.fields.SetBorder(true).SetTitle(" Fields ").SetTitleAlign(tview.AlignLeft)
	a.fields.AddItem("Default colors", "", 0, nil)
	keys := []string{engine.DefaultKey}
	for _, d := range a.eng.Registry().Descriptors() {
		a.fields.AddItem(tview.Escape(d.Label), "", 0, nil)
		keys = append(keys, d.Key)
	}
	a.fields.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		key := keys[index]
		a.loop.Post(func() {
			if err := a.eng.Select(key); err != nil {
				a.message = err.Error()
				a.publish()
			}
		})
	})

	a.mapView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false).
		SetWrap(false)
	a.mapView.SetBorder(true).SetTitle(" Network ").SetTitleAlign(tview.AlignCenter)

	a.edges = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.edges.SetBorder(true).SetTitle(" Edges ").SetTitleAlign(tview.AlignLeft)
	a.edges.SetSelectionChangedFunc(func(row, _ int) {
		if row < 1 {
			return
		}
		cell := a.edges.GetCell(row, 0)
		id, _ := cell.GetReference().(string)
		a.loop.Post(func() { a.hover(id) })
	})

	a.tooltip = tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	a.tooltip.SetBorder(true).SetTitle(" Edge ").SetTitleAlign(tview.AlignLeft)

	a.legend = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	a.legend.SetBorder(true).SetTitle(" Legend ").SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBorder(false)

	side := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.edges, 0, 2, false).
		AddItem(a.tooltip, 8, 0, false)

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.fields, 24, 0, true).
		AddItem(a.mapView, 0, 3, false).
		AddItem(side, 0, 2, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.legend, 4, 0, false).
		AddItem(a.status, 1, 0, false)

	a.pages.AddPage("main", main, true, true)
	a.app.SetInputCapture(a.handleKey)
	a.app.SetRoot(a.pages, true)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if a.pages.HasPage("color") {
		return event
	}

	switch event.Key() {
	case tcell.KeyLeft:
		a.post(func() error { return a.eng.StepBy(-1) })
		return nil
	case tcell.KeyRight:
		a.post(func() error { return a.eng.StepBy(1) })
		return nil
	case tcell.KeyTab:
		if a.app.GetFocus() == a.fields {
			a.app.SetFocus(a.edges)
		} else {
			a.app.SetFocus(a.fields)
		}
		return nil
	}

	switch event.Rune() {
	case 'q', 'Q':
		a.stop()
		return nil
	case ' ':
		a.post(func() error { a.eng.TogglePause(); return nil })
		return nil
	case 's', 'S':
		a.post(func() error { a.eng.StopPlayback(); return nil })
		return nil
	case 'p', 'P':
		a.post(a.eng.Replay)
		return nil
	case '1':
		a.showColorInput(1)
		return nil
	case '2':
		a.showColorInput(2)
		return nil
	}
	return event
}

// post runs fn on the loop and reports its error in the status bar
func (a *App) post(fn func() error) {
	a.loop.Post(func() {
		if err := fn(); err != nil {
			a.message = err.Error()
		} else {
			a.message = ""
		}
		a.publish()
	})
}

// showColorInput asks for a hex color for boundary 1 or 2
func (a *App) showColorInput(which int) {
	input := tview.NewInputField().
		SetLabel(fmt.Sprintf("Color %d (#rrggbb): ", which)).
		SetFieldWidth(9)
	input.SetBorder(true).SetTitle(" Boundary color ")
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := input.GetText()
			a.post(func() error { return a.eng.SetBoundaryColor(which, text) })
		}
		a.pages.RemovePage("color")
		a.app.SetFocus(a.fields)
	})

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(input, 3, 0, true).
			AddItem(nil, 0, 1, false), 36, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage("color", modal, true, true)
	a.app.SetFocus(input)
}

// hover moves the highlight to id; runs on the loop. Re-selecting the
// hovered row after a table refresh is a no-op.
func (a *App) hover(id string) {
	if id == a.hovered {
		return
	}
	if a.hovered != "" {
		a.eng.HoverExit(a.hovered)
	}
	a.hovered = id
	if id != "" {
		a.eng.HoverEnter(id)
	}
	a.publish()
}

// onEvent runs on the loop for every engine event
func (a *App) onEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventError:
		a.message = fmt.Sprintf("%s: %v", ev.Field, ev.Err)
	case engine.EventSelected, engine.EventActivated:
		a.message = ""
	}
	a.publish()
}

// publish snapshots the engine into the shared view state and schedules a redraw; runs on the loop
func (a *App) publish() {
	st := viewState{
		selected:  a.eng.Selected(),
		active:    a.eng.Active(),
		playback:  a.eng.Playback(),
		step:      a.eng.Step(),
		timeLabel: a.eng.TimeLabel(),
		message:   a.message,
	}
	if d, _, ok := a.eng.Field(); ok {
		st.label = d.Label
	}

	n := a.eng.Network()
	for _, id := range n.IDs() {
		e, _ := n.Edge(id)
		row := edgeRow{ID: id, Name: e.Name, Value: "-"}
		if v, ok := a.eng.Value(id); ok {
			row.Value = legend.FormatValue(v, 2)
		}
		row.Color, _ = a.eng.Color(id)
		st.rows = append(st.rows, row)
	}
	if a.hovered != "" {
		st.tooltip, _ = a.eng.Tooltip(a.hovered)
	}

	a.mu.Lock()
	a.state = st
	a.mu.Unlock()
	a.queue(a.drawPanels)
}

func (a *App) queue(draw func()) {
	if a.stopped.Load() {
		return
	}
	a.app.QueueUpdateDraw(draw)
}

func (a *App) drawSurface() {
	a.surface.Redrawn()

	_, _, w, h := a.mapView.GetInnerRect()
	if w > 0 && h > 0 {
		r := a.rasters.Get(w, h)
		a.mapView.SetText(r.Text(func(id string) scale.RGB {
			c, _ := a.surface.Color(id)
			return c
		}))
	}

	_, _, lw, _ := a.legend.GetInnerRect()
	if l, ok := a.surface.Legend(); ok {
		a.legend.SetText(legendText(l, lw))
	} else {
		a.legend.SetText("[gray]default colors[-]")
	}
}

func (a *App) drawPanels() {
	a.mu.Lock()
	st := a.state
	a.mu.Unlock()

	row, _ := a.edges.GetSelection()
	a.edges.Clear()
	header := []string{"Edge", "", "Name", "Value"}
	for col, text := range header {
		a.edges.SetCell(0, col, tview.NewTableCell(text).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, r := range st.rows {
		a.edges.SetCell(i+1, 0, tview.NewTableCell(r.ID).SetReference(r.ID))
		a.edges.SetCell(i+1, 1, tview.NewTableCell("██").
			SetTextColor(tcell.NewRGBColor(int32(r.Color.R), int32(r.Color.G), int32(r.Color.B))))
		a.edges.SetCell(i+1, 2, tview.NewTableCell(tview.Escape(r.Name)).SetExpansion(1))
		a.edges.SetCell(i+1, 3, tview.NewTableCell(r.Value).SetAlign(tview.AlignRight))
	}
	if row > 0 && row <= len(st.rows) {
		a.edges.Select(row, 0)
	}

	a.tooltip.SetText(tview.Escape(st.tooltip))
	a.status.SetText(statusText(st))
	a.drawSurface()
}

// statusText renders the status bar line
func statusText(st viewState) string {
	var b strings.Builder
	if st.active == engine.DefaultKey {
		b.WriteString("[green]default colors[white]")
	} else {
		b.WriteString(fmt.Sprintf("[green]%s[white]", tview.Escape(st.label)))
	}
	if st.selected != st.active {
		b.WriteString(fmt.Sprintf(" [yellow](loading %s)[white]", st.selected))
	}
	if st.timeLabel != "" {
		b.WriteString(fmt.Sprintf(" | [cyan]%s[white] %s step %d/%d",
			st.timeLabel, st.playback.Status, st.step+1, st.playback.Length))
	}
	if st.message != "" {
		b.WriteString(fmt.Sprintf(" | [red]%s[white]", tview.Escape(st.message)))
	}
	b.WriteString(" | Enter: field, space: pause, ←→: step, s: stop, p: replay, 1/2: colors, q: quit")
	return b.String()
}

func (a *App) stop() {
	a.stopped.Store(true)
	a.app.Stop()
}

// Run starts the engine loop and the terminal UI. It blocks until the user quits.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.loop.Run(ctx)
		close(done)
	}()

	initial := a.initial
	a.loop.Post(func() {
		if err := a.eng.Select(initial); err != nil {
			a.message = err.Error()
		}
		a.publish()
	})

	err := a.app.Run()
	a.stopped.Store(true)
	cancel()
	<-done
	a.eng.Close()
	return err
}
