package growth

import (
	"fmt"
	"strconv"
	"strings"
)

// CRSValidator checks a coordinate reference system identifier before any
// file is read.
type CRSValidator interface {
	ValidateCRS(crs string) error
}

// EPSGValidator accepts identifiers of the form "EPSG:<code>" with a positive
// integer code. An empty identifier is accepted when AllowEmpty is set.
type EPSGValidator struct {
	AllowEmpty bool
}

func (v EPSGValidator) ValidateCRS(crs string) error {
	if crs == "" {
		if v.AllowEmpty {
			return nil
		}
		return fmt.Errorf("%w: empty identifier", ErrInvalidCRS)
	}
	authority, code, ok := strings.Cut(crs, ":")
	if !ok || !strings.EqualFold(authority, "EPSG") {
		return fmt.Errorf("%w: %q is not an EPSG identifier", ErrInvalidCRS, crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return fmt.Errorf("%w: %q has no positive EPSG code", ErrInvalidCRS, crs)
	}
	return nil
}
