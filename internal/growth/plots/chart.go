package plots

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/growth.report/internal/growth"
)

// RenderBandChart writes an HTML page with the mean growth of every band and
// its percentile range.
func RenderBandChart(w io.Writer, m *growth.Model, subtitle string) error {
	labels := make([]string, len(m.Stretches))
	lower := make([]opts.BarData, len(m.Stretches))
	mean := make([]opts.BarData, len(m.Stretches))
	upper := make([]opts.BarData, len(m.Stretches))
	for i, b := range m.Bands {
		labels[i] = fmt.Sprintf("%s (n=%d)", m.Stretches.Label(i), b.Count)
		lower[i] = opts.BarData{Value: b.LowerPercentile}
		mean[i] = opts.BarData{Value: b.Mean}
		upper[i] = opts.BarData{Value: b.UpperPercentile}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Vegetation growth", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Growth per stretch", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/year"}),
	)
	bar.SetXAxis(labels).
		AddSeries("lower percentile", lower).
		AddSeries("mean", mean, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("upper percentile", upper)

	page := components.NewPage()
	page.AddCharts(bar)
	return page.Render(w)
}
