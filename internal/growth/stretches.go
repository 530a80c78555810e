package growth

import (
	"fmt"
	"strconv"
)

// Stretches holds the ascending upper height thresholds (metres) that
// partition vegetation height into bands.
type Stretches []float64

// Index returns the band of height h: the first band whose threshold is
// strictly greater than h. Heights at or above the last threshold belong to
// no band.
func (s Stretches) Index(h float64) (int, bool) {
	for i, upper := range s {
		if h < upper {
			return i, true
		}
	}
	return -1, false
}

// Label formats the threshold of band i, e.g. "<2m".
func (s Stretches) Label(i int) string {
	return fmt.Sprintf("<%sm", strconv.FormatFloat(s[i], 'g', -1, 64))
}

// Validate checks that thresholds are positive and strictly ascending.
func (s Stretches) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("no stretches configured")
	}
	prev := 0.0
	for i, v := range s {
		if v <= prev {
			return fmt.Errorf("stretch %d (%v) must be positive and greater than the previous threshold", i, v)
		}
		prev = v
	}
	return nil
}
