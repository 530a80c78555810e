package growth

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/growth.report/internal/pointcloud"
	"github.com/banshee-data/growth.report/internal/units"
)

// Cell addresses a grid cell relative to the minimum corner of its file.
type Cell struct {
	X, Y uint16
}

// HeightGrid is a sparse grid of maximum vegetation heights in whole
// millimetres. Only cells that received at least one vegetation point are
// stored. A HeightGrid is not safe for concurrent mutation.
type HeightGrid struct {
	cells map[Cell]uint16
}

// NewHeightGrid creates an empty grid.
func NewHeightGrid() *HeightGrid {
	return &HeightGrid{cells: make(map[Cell]uint16)}
}

// Update stores mm in c if it is greater than the current value. Repeated
// updates are idempotent and their order does not matter.
func (g *HeightGrid) Update(c Cell, mm uint16) {
	if cur, ok := g.cells[c]; !ok || mm > cur {
		g.cells[c] = mm
	}
}

// Get returns the height of c in millimetres.
func (g *HeightGrid) Get(c Cell) (uint16, bool) {
	mm, ok := g.cells[c]
	return mm, ok
}

// Len returns the number of populated cells.
func (g *HeightGrid) Len() int {
	return len(g.cells)
}

// Each calls fn for every populated cell in unspecified order.
func (g *HeightGrid) Each(fn func(c Cell, mm uint16)) {
	for c, mm := range g.cells {
		fn(c, mm)
	}
}

// Equal reports whether both grids hold the same cells and heights.
func (g *HeightGrid) Equal(o *HeightGrid) bool {
	if g.Len() != o.Len() {
		return false
	}
	for c, mm := range g.cells {
		if other, ok := o.cells[c]; !ok || other != mm {
			return false
		}
	}
	return true
}

// FileGrid is the result of binning one file.
type FileGrid struct {
	Grid       *HeightGrid
	Bounds     pointcloud.BoundingBox
	PointsRead int64
	PointsKept int64
}

// progressChunk is the number of points streamed between progress callbacks.
const progressChunk = 1 << 16

// GridBuilder bins vegetation points of a file into a HeightGrid.
type GridBuilder struct {
	Resolution float64
	classes    [256]bool
}

// NewGridBuilder creates a builder for the given cell size (metres) and
// vegetation classification codes.
func NewGridBuilder(resolution float64, classes []uint8) *GridBuilder {
	b := &GridBuilder{Resolution: resolution}
	for _, c := range classes {
		b.classes[c] = true
	}
	return b
}

// IsVegetation reports whether class is one of the configured codes.
func (b *GridBuilder) IsVegetation(class uint8) bool {
	return b.classes[class]
}

// CellOf maps planar coordinates onto the grid anchored at the minimum
// corner of bounds.
func (b *GridBuilder) CellOf(x, y float64, bounds pointcloud.BoundingBox) (Cell, error) {
	cx := math.Floor((x - bounds.MinX) / b.Resolution)
	cy := math.Floor((y - bounds.MinY) / b.Resolution)
	if !inCellDomain(cx) || !inCellDomain(cy) {
		return Cell{}, &DomainError{X: x, Y: y, Detail: fmt.Sprintf("cell (%.0f, %.0f)", cx, cy), Err: ErrGridDomain}
	}
	return Cell{X: uint16(cx), Y: uint16(cy)}, nil
}

func inCellDomain(v float64) bool {
	return v >= 0 && v <= math.MaxUint16
}

// AddPoint bins p into grid when it is a vegetation point. It reports
// whether the point was kept.
func (b *GridBuilder) AddPoint(grid *HeightGrid, bounds pointcloud.BoundingBox, p pointcloud.Point) (bool, error) {
	if !b.classes[p.Classification] {
		return false, nil
	}
	c, err := b.CellOf(p.X, p.Y, bounds)
	if err != nil {
		var de *DomainError
		if errors.As(err, &de) {
			de.Z = p.Z
		}
		return false, err
	}
	z := p.Z
	// Ground normalisation leaves vegetation slightly below zero.
	if z < 0 {
		z = 0
	}
	mm, err := units.QuantizeMetres(z)
	if err != nil {
		return false, &DomainError{X: p.X, Y: p.Y, Z: p.Z, Detail: err.Error(), Err: ErrHeightDomain}
	}
	grid.Update(c, mm)
	return true, nil
}

// Build streams the file at path through opener and bins its vegetation
// points. onProgress, when non-nil, receives the number of points streamed
// since the previous call. The stream is not interrupted once started.
func (b *GridBuilder) Build(opener pointcloud.Opener, path string, onProgress func(streamed int64)) (*FileGrid, error) {
	r, err := opener.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	header := r.Header()
	out := &FileGrid{Grid: NewHeightGrid(), Bounds: header.Bounds}
	var pending int64
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		out.PointsRead++
		kept, err := b.AddPoint(out.Grid, header.Bounds, p)
		if err != nil {
			var de *DomainError
			if errors.As(err, &de) {
				de.File = path
			}
			return nil, err
		}
		if kept {
			out.PointsKept++
		}
		pending++
		if onProgress != nil && pending == progressChunk {
			onProgress(pending)
			pending = 0
		}
	}
	if onProgress != nil && pending > 0 {
		onProgress(pending)
	}
	return out, nil
}

// BuildHeightGrid bins the vegetation points of one file with a one-off
// builder.
func BuildHeightGrid(opener pointcloud.Opener, path string, resolution float64, classes []uint8) (*FileGrid, error) {
	return NewGridBuilder(resolution, classes).Build(opener, path, nil)
}
