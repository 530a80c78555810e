package growth

import (
	"fmt"
	"math"
)

// BandStatistics summarises the growth rates (m/year) of one band. A Count of
// zero means the band has no statistics and all other fields are zero.
type BandStatistics struct {
	Count           int
	Mean            float64
	StdDev          float64
	LowerPercentile float64
	UpperPercentile float64
}

// Model is the persisted result: one BandStatistics per stretch, in
// ascending threshold order.
type Model struct {
	Stretches Stretches
	Bands     []BandStatistics
}

// NewModel creates a model with empty bands.
func NewModel(stretches Stretches) *Model {
	s := make(Stretches, len(stretches))
	copy(s, stretches)
	return &Model{Stretches: s, Bands: make([]BandStatistics, len(s))}
}

// TotalCount returns the number of values across all bands.
func (m *Model) TotalCount() int {
	n := 0
	for _, b := range m.Bands {
		n += b.Count
	}
	return n
}

// Prediction is a projected height with the range implied by the lower and
// upper percentile growth rates.
type Prediction struct {
	Height float64
	Low    float64
	High   float64
}

// Predict advances height (metres) by years using the growth of the band the
// projected height falls into, re-evaluated each year. A fractional final year
// is applied proportionally. Heights that grow past the last threshold keep
// the statistics of the last band.
func (m *Model) Predict(height, years float64) (Prediction, error) {
	if height < 0 || math.IsNaN(height) {
		return Prediction{}, fmt.Errorf("height must be non-negative, got %v", height)
	}
	if years < 0 || math.IsNaN(years) {
		return Prediction{}, fmt.Errorf("years must be non-negative, got %v", years)
	}
	if _, ok := m.Stretches.Index(height); !ok {
		return Prediction{}, fmt.Errorf("height %.3f m is above the last stretch (%v m)", height, m.Stretches[len(m.Stretches)-1])
	}

	p := Prediction{Height: height, Low: height, High: height}
	for remaining := years; remaining > 0; remaining-- {
		step := math.Min(1, remaining)
		mid, err := m.bandAt(p.Height)
		if err != nil {
			return Prediction{}, err
		}
		low, err := m.bandAt(p.Low)
		if err != nil {
			return Prediction{}, err
		}
		high, err := m.bandAt(p.High)
		if err != nil {
			return Prediction{}, err
		}
		p.Height += mid.Mean * step
		p.Low += low.LowerPercentile * step
		p.High += high.UpperPercentile * step
	}
	return p, nil
}

func (m *Model) bandAt(h float64) (BandStatistics, error) {
	i, ok := m.Stretches.Index(h)
	if !ok {
		i = len(m.Stretches) - 1
	}
	b := m.Bands[i]
	if b.Count == 0 {
		return BandStatistics{}, fmt.Errorf("height %.3f m (stretch %s): %w", h, m.Stretches.Label(i), ErrNoStatistics)
	}
	return b, nil
}
