package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/growth.report/internal/fsutil"
)

// Header comment keys understood by the ASCII reader.
const (
	boundsKey = "# Bounds:"
	pointsKey = "# Points:"
)

// ASCOpener opens whitespace separated "X Y Z Classification [extra...]"
// files. Lines starting with '#' or '//' are comments. When the file carries
// no "# Bounds: minX minY maxX maxY" header the bounds and point count are
// taken from a preliminary pass over the file.
type ASCOpener struct {
	FS fsutil.FileSystem
}

// NewASCOpener returns an opener reading from the OS filesystem.
func NewASCOpener() *ASCOpener {
	return &ASCOpener{FS: fsutil.OSFileSystem{}}
}

// Open implements Opener.
func (o *ASCOpener) Open(path string) (Reader, error) {
	fsys := o.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open point cloud %s: %w", path, err)
	}
	r := &ascReader{path: path, file: f, scanner: newLineScanner(f)}

	hdr, found, err := r.readHeader()
	if err != nil {
		f.Close()
		return nil, err
	}
	if found {
		r.header = hdr
		return r, nil
	}

	// No header bounds: scan the whole file once, then restart the stream.
	hdr, err = scanHeader(path, r)
	f.Close()
	if err != nil {
		return nil, err
	}
	f, err = fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen point cloud %s: %w", path, err)
	}
	return &ascReader{path: path, file: f, scanner: newLineScanner(f), header: hdr}, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return s
}

type ascReader struct {
	path    string
	file    fs.File
	scanner *bufio.Scanner
	line    int
	header  Header
	pending string
}

func (r *ascReader) Header() Header { return r.header }

func (r *ascReader) Close() error { return r.file.Close() }

// readHeader consumes the leading comment block. The first data line, if
// any, is kept for Next.
func (r *ascReader) readHeader() (Header, bool, error) {
	var hdr Header
	found := false
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}
		if !isComment(text) {
			r.pending = text
			break
		}
		switch {
		case strings.HasPrefix(text, boundsKey):
			vals, err := parseFloats(strings.Fields(strings.TrimPrefix(text, boundsKey)), 4)
			if err != nil {
				return hdr, false, fmt.Errorf("%s:%d: invalid bounds header: %w", r.path, r.line, err)
			}
			hdr.Bounds = BoundingBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
			found = true
		case strings.HasPrefix(text, pointsKey):
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(text, pointsKey)), 10, 64)
			if err != nil {
				return hdr, false, fmt.Errorf("%s:%d: invalid points header: %w", r.path, r.line, err)
			}
			hdr.PointCount = n
		}
	}
	if err := r.scanner.Err(); err != nil {
		return hdr, false, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	return hdr, found, nil
}

func (r *ascReader) Next() (Point, error) {
	for {
		var text string
		if r.pending != "" {
			text, r.pending = r.pending, ""
		} else {
			if !r.scanner.Scan() {
				if err := r.scanner.Err(); err != nil {
					return Point{}, fmt.Errorf("failed to read %s: %w", r.path, err)
				}
				return Point{}, io.EOF
			}
			r.line++
			text = strings.TrimSpace(r.scanner.Text())
		}
		if text == "" || isComment(text) {
			continue
		}
		return r.parsePoint(text)
	}
}

func (r *ascReader) parsePoint(text string) (Point, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return Point{}, fmt.Errorf("%s:%d: expected X Y Z Classification, got %d columns", r.path, r.line, len(fields))
	}
	vals, err := parseFloats(fields[:3], 3)
	if err != nil {
		return Point{}, fmt.Errorf("%s:%d: %w", r.path, r.line, err)
	}
	class, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil {
		return Point{}, fmt.Errorf("%s:%d: invalid classification %q", r.path, r.line, fields[3])
	}
	return Point{X: vals[0], Y: vals[1], Z: vals[2], Classification: uint8(class)}, nil
}

// scanHeader derives bounds and point count from the remaining points of r.
func scanHeader(path string, r *ascReader) (Header, error) {
	hdr := Header{Bounds: BoundingBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}}
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Header{}, err
		}
		hdr.Bounds.Extend(p.X, p.Y)
		hdr.PointCount++
	}
	if hdr.PointCount == 0 {
		hdr.Bounds = BoundingBox{}
	}
	return hdr, nil
}

func isComment(text string) bool {
	return strings.HasPrefix(text, "#") || strings.HasPrefix(text, "//")
}

func parseFloats(fields []string, want int) ([]float64, error) {
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(fields))
	}
	out := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = v
	}
	return out, nil
}

// WriteASC writes points in the layout read by ASCOpener, including the
// bounds and point-count header.
func WriteASC(w io.Writer, points []Point) error {
	hdr := Header{PointCount: int64(len(points))}
	if len(points) > 0 {
		hdr.Bounds = BoundingBox{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
		for _, p := range points[1:] {
			hdr.Bounds.Extend(p.X, p.Y)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %.6f %.6f %.6f %.6f\n", boundsKey, hdr.Bounds.MinX, hdr.Bounds.MinY, hdr.Bounds.MaxX, hdr.Bounds.MaxY)
	fmt.Fprintf(bw, "%s %d\n", pointsKey, hdr.PointCount)
	fmt.Fprintf(bw, "# Format: X Y Z Classification\n")
	for _, p := range points {
		fmt.Fprintf(bw, "%.6f %.6f %.6f %d\n", p.X, p.Y, p.Z, p.Classification)
	}
	return bw.Flush()
}
