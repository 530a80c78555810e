package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics collects the counters of a single estimation run in a private
// registry. All methods are safe on a nil receiver so callers can pass nil when
// metrics are not wanted.
type RunMetrics struct {
	registry *prometheus.Registry

	filesProcessed   prometheus.Counter
	pointsRead       prometheus.Counter
	vegetationPoints prometheus.Counter
	growthSamples    *prometheus.CounterVec
	runDuration      prometheus.Gauge
}

// NewRunMetrics creates and registers the run metrics.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		filesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "growth_files_processed_total",
			Help: "Point-cloud files binned into height grids.",
		}),
		pointsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "growth_points_read_total",
			Help: "Points streamed from point-cloud files.",
		}),
		vegetationPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "growth_vegetation_points_total",
			Help: "Points whose classification matched the vegetation classes.",
		}),
		growthSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growth_samples_total",
			Help: "Positive growth-rate samples by stretch index.",
		}, []string{"stretch"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "growth_run_duration_seconds",
			Help: "Wall-clock duration of the last estimation run.",
		}),
	}
	m.registry.MustRegister(m.filesProcessed, m.pointsRead, m.vegetationPoints, m.growthSamples, m.runDuration)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *RunMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FileDone records one finished file with its point totals.
func (m *RunMetrics) FileDone(read, kept int64) {
	if m == nil {
		return
	}
	m.filesProcessed.Inc()
	m.pointsRead.Add(float64(read))
	m.vegetationPoints.Add(float64(kept))
}

// AddSamples records n growth samples for a stretch.
func (m *RunMetrics) AddSamples(stretch int, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.growthSamples.WithLabelValues(fmt.Sprintf("%d", stretch)).Add(float64(n))
}

// ObserveDuration stores the run duration.
func (m *RunMetrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
}

// WriteMetricsFile writes the metrics in node-exporter textfile format.
func (m *RunMetrics) WriteMetricsFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
