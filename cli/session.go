package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/MetropolisTHEMA/metroviz/config"
	"github.com/MetropolisTHEMA/metroviz/engine"
	"github.com/MetropolisTHEMA/metroviz/ingestor"
	"github.com/MetropolisTHEMA/metroviz/loop"
	"github.com/MetropolisTHEMA/metroviz/metrics"
	"github.com/MetropolisTHEMA/metroviz/network"
	"github.com/MetropolisTHEMA/metroviz/output"
	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/MetropolisTHEMA/metroviz/tui"
)

// LegendOptions controls the legend command output
type LegendOptions struct {
	Step  int
	Width int
	Plain bool
}

// session is what every command needs before it can build an engine
type session struct {
	cfg      *config.Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	network  *network.Network
	source   ingestor.Source
	registry *engine.Registry
	closers  []func()
}

// openSession opens the log, starts the metrics endpoint and loads the network.
// Logs go to logOut unless a log file is configured.
func openSession(ctx context.Context, cfg *config.Config, logOut io.Writer) (*session, error) {
	s := &session{cfg: cfg, metrics: metrics.New()}

	logger, closeLog, err := openLogger(cfg.Global.LogFile, logOut)
	if err != nil {
		return nil, err
	}
	s.logger = logger
	s.closers = append(s.closers, closeLog)

	if s.registry, err = cfg.Registry(); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Offline() {
		n, err := ingestor.LoadNetworkFile(cfg.Global.GeoJSON)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.network = n
		s.source = &ingestor.Files{Paths: cfg.FilePaths(), Network: n}
		s.logger.Printf("network %s: %d edges", cfg.Global.GeoJSON, n.Len())
	} else {
		loc, err := cfg.Location()
		if err != nil {
			s.Close()
			return nil, err
		}
		client := ingestor.NewClient(cfg.Global.BaseURL, loc, cfg.Global.Timeout, s.logger)
		n, err := client.FetchNetwork(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load network: %w", err)
		}
		s.network = n
		s.source = client
	}

	if addr := cfg.Global.MetricsAddr; addr != "" {
		s.closers = append(s.closers, serveMetrics(addr, s.metrics, s.logger))
	}
	return s, nil
}

// Close releases the session resources in reverse order
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// engineConfig wires the session into an engine configuration
func (s *session) engineConfig(sched loop.Scheduler, surface render.Surface) (engine.Config, error) {
	start, err := s.cfg.StartTime()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Scheduler:   sched,
		Source:      s.source,
		Network:     s.network,
		Surface:     surface,
		Registry:    s.registry,
		Logger:      s.logger,
		Metrics:     s.metrics,
		Interval:    s.cfg.Playback.Interval,
		Loop:        s.cfg.Playback.Loop,
		Bands:       s.cfg.Style.Bands,
		Highlight:   s.cfg.Highlight(),
		StartTime:   start,
		StepMinutes: s.cfg.Playback.StepMinutes,
	}, nil
}

// activate builds an engine without a running loop and loads field into it
func (s *session) activate(ctx context.Context, field string) (*engine.Engine, error) {
	ecfg, err := s.engineConfig(loop.NewManual(), render.NewMemory())
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(ecfg)
	if err != nil {
		return nil, err
	}
	if err := eng.Activate(ctx, field); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

func openLogger(path string, fallback io.Writer) (*log.Logger, func(), error) {
	if path == "" {
		return log.New(fallback, "metroviz: ", log.LstdFlags), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "metroviz: ", log.LstdFlags), func() { f.Close() }, nil
}

// serveMetrics exposes the session counters on addr/metrics until the returned function is called
func serveMetrics(addr string, m *metrics.Metrics, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()
	logger.Printf("serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// View runs the terminal map until the user quits. Without a log file
// logs are discarded, the terminal belongs to the UI.
func View(ctx context.Context, cfg *config.Config, field string) error {
	s, err := openSession(ctx, cfg, io.Discard)
	if err != nil {
		return err
	}
	defer s.Close()

	if field != "" && field != engine.DefaultKey {
		if _, ok := s.registry.Get(field); !ok {
			return fmt.Errorf("field %q: %w", field, engine.ErrUnknownField)
		}
	}

	ecfg, err := s.engineConfig(nil, nil)
	if err != nil {
		return err
	}
	app, err := tui.NewApp(ecfg, field)
	if err != nil {
		return err
	}
	return app.Run()
}

// Export styles field over all of its steps and writes the snapshot as JSON.
// With a plot path the chart is written too and reported as an info warning.
func Export(ctx context.Context, w io.Writer, cfg *config.Config, field string, compact bool) error {
	start := time.Now()
	s, err := openSession(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	eng, err := s.activate(ctx, field)
	if err != nil {
		return fmt.Errorf("export %s: %w", field, err)
	}
	defer eng.Close()

	snap, err := output.Capture(eng, start)
	if err != nil {
		return err
	}

	if path := cfg.Global.PlotPath; path != "" {
		plotStart := time.Now()
		if err := output.PlotField(snap, path); err != nil {
			snap.AddError("plot", err.Error(), 0)
		} else {
			snap.AddWarning("info", fmt.Sprintf("Chart generated in %v at %s", time.Since(plotStart), path), 0)
		}
	}
	snap.UpdateDuration(start)

	var data []byte
	if compact {
		data, err = snap.ToCompactJSON()
	} else {
		data, err = snap.ToJSON()
	}
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Legend prints the legend of field. Time-indexed fields show opts.Step.
func Legend(ctx context.Context, w io.Writer, cfg *config.Config, field string, opts LegendOptions) error {
	s, err := openSession(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	eng, err := s.activate(ctx, field)
	if err != nil {
		return fmt.Errorf("legend %s: %w", field, err)
	}
	defer eng.Close()

	d, steps, ok := eng.Field()
	if !ok {
		return fmt.Errorf("legend %s: %w", field, engine.ErrNoField)
	}
	if steps > 0 && opts.Step != 0 {
		if err := eng.Seek(opts.Step); err != nil {
			return fmt.Errorf("legend %s step %d: %w", field, opts.Step, err)
		}
	}
	sc := eng.Scale()
	if sc == nil {
		return fmt.Errorf("legend %s: %w", field, scale.ErrEmptyDomain)
	}

	title := d.Label
	if label := eng.TimeLabel(); label != "" {
		title += " at " + label
	}
	output.PrintLegend(w, sc, title, opts.Width, opts.Plain)
	return nil
}
