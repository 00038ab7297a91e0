package monitor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// IntervalChart renders frame set intervals (milliseconds, oldest first) as
// an HTML line chart.
func IntervalChart(w io.Writer, intervals []float64) error {
	x := make([]string, len(intervals))
	y := make([]opts.LineData, len(intervals))
	for i, ms := range intervals {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: ms}
	}

	subtitle := "no frame sets yet"
	if len(intervals) > 0 {
		mean, std := stat.MeanStdDev(intervals, nil)
		subtitle = fmt.Sprintf("n=%d mean=%.2fms std=%.2fms", len(intervals), mean, std)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Frame Intervals", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Set Intervals", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(x).AddSeries("interval", y)
	return line.Render(w)
}

// DepthHistogram writes a PNG histogram of distances in metres.
func DepthHistogram(w io.Writer, distances []float64, bins int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Depth (%d samples)", len(distances))
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Pixels"

	h, err := plotter.NewHist(plotter.Values(distances), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
