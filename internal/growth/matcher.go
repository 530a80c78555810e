package growth

import (
	"math"

	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/units"
)

// Samples holds growth rates per band in mm/year.
type Samples struct {
	ByStretch [][]uint16
}

// NewSamples creates empty sample lists for n bands.
func NewSamples(n int) *Samples {
	return &Samples{ByStretch: make([][]uint16, n)}
}

// Total returns the number of samples across all bands.
func (s *Samples) Total() int {
	n := 0
	for _, b := range s.ByStretch {
		n += len(b)
	}
	return n
}

// Rates returns band i as m/year values.
func (s *Samples) Rates(i int) []float64 {
	out := make([]float64, len(s.ByStretch[i]))
	for j, v := range s.ByStretch[i] {
		out[j] = units.Metres(v)
	}
	return out
}

// MatchSummary counts what the matcher saw.
type MatchSummary struct {
	YearPairs    int
	FilePairs    int
	SkippedPairs int
	MatchedCells int
	NotGrowing   int
	OutOfBands   int
}

// Matcher pairs cells of every earlier/later year combination.
type Matcher struct {
	Resolution float64
	Stretches  Stretches
}

// Match compares every pair of years in groups using the grids in store and
// returns the positive growth rates per band of the earlier height.
func (m *Matcher) Match(groups YearGroups, store *ResultStore) (*Samples, MatchSummary) {
	samples := NewSamples(len(m.Stretches))
	var sum MatchSummary
	years := groups.Years()
	for i, early := range years {
		for _, late := range years[i+1:] {
			sum.YearPairs++
			dt := float64(late - early)
			for _, li := range groups[late] {
				for _, fi := range groups[early] {
					if !store.Bounds(li).Overlaps(store.Bounds(fi)) {
						sum.SkippedPairs++
						continue
					}
					sum.FilePairs++
					m.matchFiles(store, li, fi, dt, samples, &sum)
				}
			}
		}
	}
	monitoring.Logf("[matcher] %d year pairs, %d file pairs compared, %d skipped, %d samples",
		sum.YearPairs, sum.FilePairs, sum.SkippedPairs, samples.Total())
	return samples, sum
}

func (m *Matcher) matchFiles(store *ResultStore, li, fi int, dt float64, samples *Samples, sum *MatchSummary) {
	lb, fb := store.Bounds(li), store.Bounds(fi)
	earlier := store.Grid(fi)
	store.Grid(li).Each(func(c Cell, lateMM uint16) {
		x := lb.MinX + (float64(c.X)+0.5)*m.Resolution
		y := lb.MinY + (float64(c.Y)+0.5)*m.Resolution
		fx := math.Floor((x - fb.MinX) / m.Resolution)
		fy := math.Floor((y - fb.MinY) / m.Resolution)
		if !inCellDomain(fx) || !inCellDomain(fy) {
			return
		}
		earlyMM, ok := earlier.Get(Cell{X: uint16(fx), Y: uint16(fy)})
		if !ok {
			return
		}
		sum.MatchedCells++
		if lateMM <= earlyMM {
			sum.NotGrowing++
			return
		}
		before := units.Metres(earlyMM)
		band, ok := m.Stretches.Index(before)
		if !ok {
			sum.OutOfBands++
			return
		}
		rate := math.Round((units.Metres(lateMM) - before) / dt * units.MillimetresPerMetre)
		// Growth below 1 mm/year is not measurable in the sample domain.
		if rate < 1 {
			sum.NotGrowing++
			return
		}
		samples.ByStretch[band] = append(samples.ByStretch[band], uint16(rate))
	})
}

// MatchYears runs a Matcher over the grids in store.
func MatchYears(groups YearGroups, store *ResultStore, resolution float64, stretches Stretches) (*Samples, MatchSummary) {
	m := &Matcher{Resolution: resolution, Stretches: stretches}
	return m.Match(groups, store)
}
