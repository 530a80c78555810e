// Package plots renders charts of growth samples and models.
package plots

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/growth.report/internal/fsutil"
	"github.com/banshee-data/growth.report/internal/growth"
	"github.com/banshee-data/growth.report/internal/monitoring"
)

// HistogramFileName returns the PNG name of band i.
func HistogramFileName(i int) string {
	return fmt.Sprintf("stretch_%d_growth.png", i)
}

// binCount follows Sturges' rule.
func binCount(n int) int {
	return 1 + int(math.Ceil(math.Log2(float64(n))))
}

// WriteHistograms writes one growth-rate histogram per band that has
// samples into dir and returns the written paths.
func WriteHistograms(fsys fsutil.FileSystem, dir string, samples *growth.Samples, stretches growth.Stretches) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	var written []string
	for i := range stretches {
		if i >= len(samples.ByStretch) || len(samples.ByStretch[i]) == 0 {
			continue
		}
		rates := samples.Rates(i)

		p := plot.New()
		p.Title.Text = fmt.Sprintf("Growth, stretch %s (n=%d)", stretches.Label(i), len(rates))
		p.X.Label.Text = "Growth (m/year)"
		p.Y.Label.Text = "Cells"

		h, err := plotter.NewHist(plotter.Values(rates), binCount(len(rates)))
		if err != nil {
			return written, fmt.Errorf("stretch %d histogram: %w", i, err)
		}
		h.LineStyle.Width = vg.Points(0.5)
		p.Add(h)

		wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
		if err != nil {
			return written, fmt.Errorf("stretch %d render: %w", i, err)
		}
		var buf bytes.Buffer
		if _, err := wt.WriteTo(&buf); err != nil {
			return written, fmt.Errorf("stretch %d render: %w", i, err)
		}

		path := filepath.Join(dir, HistogramFileName(i))
		if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
			return written, err
		}
		monitoring.Debugf("[plots] wrote %s", path)
		written = append(written, path)
	}
	return written, nil
}
