package growth

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/units"
)

// AggregateOptions controls the reduction of samples into statistics.
type AggregateOptions struct {
	MinSamples int
	// Percentile is the upper trim percentile P; the lower trim is 100-P.
	Percentile float64
}

// ComputeBandStatistics reduces mm/year samples to trimmed statistics.
// Bands with fewer than MinSamples values yield zero statistics.
//
// The sorted samples are trimmed to [floor(n(1-P/100)), ceil(nP/100)); mean
// and sample standard deviation are taken over that range, and the
// percentiles are the values at its two ends.
func ComputeBandStatistics(samples []uint16, opts AggregateOptions) BandStatistics {
	n := len(samples)
	if n == 0 || n < opts.MinSamples {
		return BandStatistics{}
	}

	xs := make([]float64, n)
	for i, v := range samples {
		xs[i] = float64(v)
	}
	floats.Scale(1/units.MillimetresPerMetre, xs)
	sort.Float64s(xs)

	p := opts.Percentile / 100
	lower := int(math.Floor(float64(n) * (1 - p)))
	upper := int(math.Ceil(float64(n) * p))
	if lower > n-1 {
		lower = n - 1
	}
	end := min(upper, n)
	if end <= lower {
		end = lower + 1
	}
	trimmed := xs[lower:end]

	// A constant range has no spread; computing it would leave rounding noise.
	mean, std := trimmed[0], 0.0
	if trimmed[0] != trimmed[len(trimmed)-1] {
		mean = stat.Mean(trimmed, nil)
		std = stat.StdDev(trimmed, nil)
	}
	return BandStatistics{
		Count:           n,
		Mean:            mean,
		StdDev:          std,
		LowerPercentile: xs[lower],
		UpperPercentile: xs[min(upper, n-1)],
	}
}

// MergeBandStatistics folds a new batch into existing statistics with a
// count-weighted average. The merge is skipped, keeping old unchanged, when
// the new batch has no spread (StdDev == 0); this also covers batches below
// the sample minimum. Existing models rely on this behaviour.
func MergeBandStatistics(old, cur BandStatistics) BandStatistics {
	if old.Count == 0 {
		return cur
	}
	if !(cur.StdDev > 0) {
		return old
	}
	total := old.Count + cur.Count
	wo := float64(old.Count) / float64(total)
	wc := float64(cur.Count) / float64(total)
	avg := func(a, b float64) float64 { return a*wo + b*wc }
	return BandStatistics{
		Count:           total,
		Mean:            avg(old.Mean, cur.Mean),
		StdDev:          avg(old.StdDev, cur.StdDev),
		LowerPercentile: avg(old.LowerPercentile, cur.LowerPercentile),
		UpperPercentile: avg(old.UpperPercentile, cur.UpperPercentile),
	}
}

// Aggregate computes a model from samples. When prev is non-nil its bands are
// merged with the new statistics; prev itself is not modified.
func Aggregate(prev *Model, stretches Stretches, samples *Samples, opts AggregateOptions) *Model {
	out := NewModel(stretches)
	for i := range out.Bands {
		var batch []uint16
		if i < len(samples.ByStretch) {
			batch = samples.ByStretch[i]
		}
		cur := ComputeBandStatistics(batch, opts)
		if len(batch) > 0 && cur.Count == 0 {
			monitoring.Debugf("[aggregate] stretch %s: %d samples below minimum %d", stretches.Label(i), len(batch), opts.MinSamples)
		}
		if prev != nil && i < len(prev.Bands) {
			cur = MergeBandStatistics(prev.Bands[i], cur)
		}
		out.Bands[i] = cur
	}
	return out
}
