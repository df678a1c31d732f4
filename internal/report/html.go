package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cloudmerge/internal/bench"
	"github.com/banshee-data/cloudmerge/internal/cloud"
)

// DefaultMaxPoints caps the points drawn by RenderCloudHTML.
const DefaultMaxPoints = 20000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderSummaryHTML writes a page with the mean and standard deviation of
// merge latency per vehicle count.
func RenderSummaryHTML(w io.Writer, res *bench.Result) error {
	if res == nil {
		return ErrNoSamples
	}

	x := make([]string, len(res.Groups))
	means := make([]opts.BarData, len(res.Groups))
	stddevs := make([]opts.BarData, len(res.Groups))
	for i, g := range res.Groups {
		x[i] = strconv.Itoa(g.Vehicles)
		means[i] = opts.BarData{Value: round3(g.Mean)}
		stddevs[i] = opts.BarData{Value: round3(g.StdDev)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cloud merge benchmark", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Avg. merging time",
			Subtitle: fmt.Sprintf("run=%s device=%d samples=%d", res.RunID, res.DeviceIndex, len(res.Samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Vehicles", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms", NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(x).
		AddSeries("mean", means, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("stddev", stddevs)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render summary chart: %w", err)
	}
	return nil
}

// RenderCloudHTML writes a top-down scatter of c coloured by intensity.
// Large clouds are strided down to at most maxPoints; maxPoints <= 0 uses
// DefaultMaxPoints. Non-finite points are not drawn.
func RenderCloudHTML(w io.Writer, c cloud.PointCloud, title string, maxPoints int) error {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	stride := 1
	if len(c) > maxPoints {
		stride = (len(c) + maxPoints - 1) / maxPoints
	}

	data := make([]opts.ScatterData, 0, len(c)/stride+1)
	minI, maxI := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(c); i += stride {
		p := c[i]
		x, y, in := float64(p.X()), float64(p.Y()), float64(p.Intensity())
		if !finite(x) || !finite(y) || !finite(in) {
			continue
		}
		minI = math.Min(minI, in)
		maxI = math.Max(maxI, in)
		data = append(data, opts.ScatterData{Value: []interface{}{round3(x), round3(y), round3(in)}})
	}
	if len(data) == 0 {
		minI, maxI = 0, 1
	}

	pad := 10.0
	if bb, ok := cloud.Bounds(c); ok {
		for _, v := range []float32{bb.Min[0], bb.Min[1], bb.Max[0], bb.Max[1]} {
			if a := math.Abs(float64(v)); finite(a) && a > pad {
				pad = a
			}
		}
		pad = math.Ceil(pad)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d drawn=%d stride=%d", len(c), len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minI),
			Max:        float32(maxI),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render cloud chart: %w", err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
