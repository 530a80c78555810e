package growth

import (
	"sync"

	"github.com/banshee-data/growth.report/internal/config"
	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/pointcloud"
)

func init() {
	monitoring.SetLogger(nil)
}

var testStretches = Stretches{0.25, 0.5, 1.0, 2.0, 3.0, 5.0}

// rowPoints places one vegetation point per cell along y=0.5 with the given
// heights.
func rowPoints(heights ...float64) []pointcloud.Point {
	pts := make([]pointcloud.Point, len(heights))
	for i, h := range heights {
		pts[i] = pointcloud.Point{X: float64(i) + 0.5, Y: 0.5, Z: h, Classification: 3}
	}
	return pts
}

func repeat(h float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = h
	}
	return out
}

func rowBounds(n int) pointcloud.BoundingBox {
	return pointcloud.BoundingBox{MinX: 0, MinY: 0, MaxX: float64(n), MaxY: 1}
}

func ptr[T any](v T) *T { return &v }

func testConfig() *config.GrowthConfig {
	cfg := config.EmptyGrowthConfig()
	cfg.Resolution = ptr(1.0)
	return cfg
}

// recordingProgress records every report and cancels once cancelAt reports
// have been seen (0 never cancels).
type recordingProgress struct {
	mu       sync.Mutex
	reports  [][2]int
	cancelAt int
}

func (p *recordingProgress) Report(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, [2]int{current, total})
}

func (p *recordingProgress) IsCanceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelAt > 0 && len(p.reports) >= p.cancelAt
}
