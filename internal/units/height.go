// Package units converts heights between metres and the 16-bit millimetre
// domain used by the height grids.
package units

import (
	"fmt"
	"math"
)

// MillimetresPerMetre scales metre values into the 16-bit millimetre domain.
const MillimetresPerMetre = 1000.0

// MaxMillimetres is the largest value representable in the 16-bit domain.
const MaxMillimetres = math.MaxUint16

// MaxQuantizedMetres is MaxMillimetres expressed in metres (65.535 m).
const MaxQuantizedMetres = MaxMillimetres / MillimetresPerMetre

// QuantizeMetres rounds a metre value to whole millimetres. It fails when the
// rounded value falls outside 0…65535.
func QuantizeMetres(m float64) (uint16, error) {
	mm := math.Round(m * MillimetresPerMetre)
	if math.IsNaN(mm) || mm < 0 || mm > MaxMillimetres {
		return 0, fmt.Errorf("%.3f m outside the 16-bit millimetre domain (0..%.3f m)", m, MaxQuantizedMetres)
	}
	return uint16(mm), nil
}

// Metres converts a quantized millimetre value back to metres.
func Metres(mm uint16) float64 {
	return float64(mm) / MillimetresPerMetre
}
