package output

import (
	"fmt"
	"os"

	"github.com/MetropolisTHEMA/metroviz/scale"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// gradient stops handed to the visual map
const visualMapStops = 8

// PlotField writes an HTML page with one bar chart per step. Bars carry the
// exported edge colors; the visual map shows the field's gradient.
func PlotField(snap *Snapshot, filename string) error {
	if len(snap.Steps) == 0 {
		return fmt.Errorf("plot %s: no steps to plot", snap.Field.Key)
	}
	c1, err := scale.ParseHex(snap.Field.Color1)
	if err != nil {
		return fmt.Errorf("plot %s: %w", snap.Field.Key, err)
	}
	c2, err := scale.ParseHex(snap.Field.Color2)
	if err != nil {
		return fmt.Errorf("plot %s: %w", snap.Field.Key, err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	for _, st := range snap.Steps {
		page.AddCharts(stepChart(snap.Field, st, c1, c2))
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create plot file %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	return nil
}

func stepChart(field FieldInfo, st Step, c1, c2 scale.RGB) *charts.Bar {
	ids := make([]string, 0, len(st.Edges))
	data := make([]opts.BarData, 0, len(st.Edges))
	for _, e := range st.Edges {
		if e.Value == nil {
			continue
		}
		ids = append(ids, e.ID)
		data = append(data, opts.BarData{
			Name:      e.ID,
			Value:     *e.Value,
			ItemStyle: &opts.ItemStyle{Color: e.Color},
		})
	}

	title := field.Label
	if st.Label != "" {
		title = fmt.Sprintf("%s at %s", field.Label, st.Label)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       field.Label,
			Width:           "900px",
			Height:          "400px",
			Theme:           types.ThemeWesteros,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s field, %s domain", field.Kind, field.Policy),
			Left:     "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return 'edge ' + params.name + '<br />' + params.value;
	}`),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "edge",
			Type: "category",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: field.Label,
		}),
	)

	if st.Domain != nil {
		bar.SetGlobalOptions(charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(false),
			Min:        float32(st.Domain.Min),
			Max:        float32(st.Domain.Max),
			InRange: &opts.VisualMapInRange{
				Color: gradientStops(scale.Build(scale.Domain{Min: st.Domain.Min, Max: st.Domain.Max}, c1, c2)),
			},
			Orient: "vertical",
			Right:  "2%",
			Top:    "middle",
		}))
	}

	bar.SetXAxis(ids).AddSeries(field.Key, data)
	return bar
}

// gradientStops samples the scale so the visual map follows its interpolation
func gradientStops(s *scale.Scale) []string {
	d := s.Domain()
	stops := make([]string, 0, visualMapStops)
	for i := 0; i < visualMapStops; i++ {
		v := d.Min + d.Span()*float64(i)/float64(visualMapStops-1)
		stops = append(stops, s.At(v).Hex())
	}
	return stops
}
