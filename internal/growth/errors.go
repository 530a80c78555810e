package growth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoYear is returned when a file name carries no year token.
	ErrNoYear = errors.New("no year found")
	// ErrAmbiguousYear is returned when a file name carries several year tokens.
	ErrAmbiguousYear = errors.New("ambiguous year")
	// ErrGridDomain is returned when a point falls outside the 16-bit cell domain.
	ErrGridDomain = errors.New("cell coordinate outside 16-bit grid domain")
	// ErrHeightDomain is returned when a height cannot be stored in 16-bit millimetres.
	ErrHeightDomain = errors.New("height outside 16-bit millimetre domain")
	// ErrInvalidCRS is returned by CRS validators for unknown identifiers.
	ErrInvalidCRS = errors.New("invalid coordinate reference system")
	// ErrNoStatistics is returned by predictions that hit a band without values.
	ErrNoStatistics = errors.New("no statistics for stretch")
)

// ParseError reports a malformed line in a model file.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// DomainError reports a point that cannot be represented in the 16-bit grid
// or height domain. Err is ErrGridDomain or ErrHeightDomain.
type DomainError struct {
	File    string
	X, Y, Z float64
	Detail  string
	Err     error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("point (%.3f, %.3f, %.3f): %v", e.X, e.Y, e.Z, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }
