// Package report renders benchmark results and merged clouds as PNG plots
// and standalone HTML charts.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cloudmerge/internal/bench"
)

// ErrNoSamples is returned when a result has nothing to plot.
var ErrNoSamples = errors.New("result has no samples")

// latencySeries splits merge latencies (ms) by vehicle count, keyed in the
// order the samples were taken.
func latencySeries(res *bench.Result) (map[int]plotter.XYs, []int) {
	series := make(map[int]plotter.XYs)
	for i, s := range res.Samples {
		ms := float64(s.Merge) / 1e6
		series[s.Vehicles] = append(series[s.Vehicles], plotter.XY{X: float64(i), Y: ms})
	}
	keys := make([]int, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return series, keys
}

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// PlotLatency writes a PNG (or any format gonum/plot infers from the
// extension) with one line of merge latency per vehicle count.
func PlotLatency(res *bench.Result, path string) error {
	p, err := latencyPlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save latency plot: %w", err)
	}
	return nil
}

// WriteLatencyPlot renders the latency plot to w in the given format
// ("png", "svg", "pdf", ...).
func WriteLatencyPlot(w io.Writer, res *bench.Result, format string) error {
	p, err := latencyPlot(res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("latency plot %s writer: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write latency plot: %w", err)
	}
	return nil
}

func latencyPlot(res *bench.Result) (*plot.Plot, error) {
	if res == nil || len(res.Samples) == 0 {
		return nil, ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Merge latency - run %s", res.RunID)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Latency (ms)"
	p.Add(plotter.NewGrid())

	series, keys := latencySeries(res)
	for i, k := range keys {
		line, points, err := plotter.NewLinePoints(series[k])
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(fmt.Sprintf("%d vehicles", k), line, points)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
