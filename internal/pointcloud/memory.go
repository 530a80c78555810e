package pointcloud

import (
	"fmt"
	"io"
	"io/fs"
	"sync"
)

// MemoryOpener serves point clouds held in memory. It is used by tests and
// by callers that already decoded their points.
type MemoryOpener struct {
	mu    sync.RWMutex
	files map[string]memoryFile
}

type memoryFile struct {
	header Header
	points []Point
}

// NewMemoryOpener creates an empty MemoryOpener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{files: make(map[string]memoryFile)}
}

// Add registers points under path with bounds computed from the points.
func (m *MemoryOpener) Add(path string, points []Point) {
	var b BoundingBox
	if len(points) > 0 {
		b = BoundingBox{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
		for _, p := range points[1:] {
			b.Extend(p.X, p.Y)
		}
	}
	m.AddWithBounds(path, b, points)
}

// AddWithBounds registers points under path with explicit header bounds.
func (m *MemoryOpener) AddWithBounds(path string, bounds BoundingBox, points []Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Point, len(points))
	copy(cp, points)
	m.files[path] = memoryFile{header: Header{Bounds: bounds, PointCount: int64(len(points))}, points: cp}
}

// Open implements Opener.
func (m *MemoryOpener) Open(path string) (Reader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("failed to open point cloud %s: %w", path, fs.ErrNotExist)
	}
	return NewSliceReader(f.header, f.points), nil
}

// SliceReader streams points from a slice.
type SliceReader struct {
	header Header
	points []Point
	next   int
}

// NewSliceReader returns a Reader over points.
func NewSliceReader(header Header, points []Point) *SliceReader {
	return &SliceReader{header: header, points: points}
}

func (r *SliceReader) Header() Header { return r.header }

func (r *SliceReader) Next() (Point, error) {
	if r.next >= len(r.points) {
		return Point{}, io.EOF
	}
	p := r.points[r.next]
	r.next++
	return p, nil
}

func (r *SliceReader) Close() error { return nil }
