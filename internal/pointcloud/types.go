package pointcloud

import "io"

// Point is a single classified return in the survey's planar coordinate
// system. Z is the height above ground in metres.
type Point struct {
	X, Y, Z        float64
	Classification uint8
}

// BoundingBox is the planar extent of a file.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// Extend grows the box to include (x, y).
func (b *BoundingBox) Extend(x, y float64) {
	if x < b.MinX {
		b.MinX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y > b.MaxY {
		b.MaxY = y
	}
}

// Overlaps reports whether the two boxes share a region of positive area.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return !(o.MaxX <= b.MinX || o.MinX >= b.MaxX || o.MaxY <= b.MinY || o.MinY >= b.MaxY)
}

// Header describes a file before any point is read.
type Header struct {
	Bounds     BoundingBox
	PointCount int64
}

// Reader streams points one at a time. Next returns io.EOF after the last
// point.
type Reader interface {
	Header() Header
	Next() (Point, error)
	io.Closer
}

// Opener opens a point-cloud file for streaming.
type Opener interface {
	Open(path string) (Reader, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Reader, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Reader, error) {
	return f(path)
}
