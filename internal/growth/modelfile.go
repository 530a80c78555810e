package growth

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/growth.report/internal/fsutil"
)

// ModelHeader is the first line of every model file.
const ModelHeader = "Vegetation growth model v1"

const (
	modelSeparator = ";"

	keyStretch = "Stretch"
	keyCount   = "Number of values"
	keyMean    = "Mean"
	keyStdDev  = "Standard deviation"
	keyLower   = "Lower percentile"
	keyUpper   = "Upper percentile"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteModel writes m in the model file format. Statistic lines are only
// written for bands with values.
func WriteModel(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	line := func(key, value string) {
		fmt.Fprintf(bw, "%s%s%s\n", key, modelSeparator, value)
	}
	fmt.Fprintln(bw, ModelHeader)
	for i, threshold := range m.Stretches {
		b := m.Bands[i]
		line(keyStretch, formatFloat(threshold))
		line(keyCount, strconv.Itoa(b.Count))
		if b.Count == 0 {
			continue
		}
		line(keyMean, formatFloat(b.Mean))
		line(keyStdDev, formatFloat(b.StdDev))
		line(keyLower, formatFloat(b.LowerPercentile))
		line(keyUpper, formatFloat(b.UpperPercentile))
	}
	return bw.Flush()
}

// ReadModel parses a model file. name is used in error messages and
// stretches are the configured thresholds every Stretch line must match.
func ReadModel(r io.Reader, name string, stretches Stretches) (*Model, error) {
	m := NewModel(stretches)
	sc := bufio.NewScanner(r)
	lineNo := 0
	fail := func(format string, args ...any) error {
		return &ParseError{File: name, Line: lineNo, Msg: fmt.Sprintf(format, args...)}
	}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		lineNo = 1
		return nil, fail("empty model file")
	}
	lineNo = 1
	if strings.TrimRight(sc.Text(), "\r") != ModelHeader {
		return nil, fail("unexpected header %q", sc.Text())
	}

	band := -1
	for sc.Scan() {
		lineNo++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, modelSeparator)
		if len(fields) != 2 {
			return nil, fail("expected 2 fields separated by %q, got %d", modelSeparator, len(fields))
		}
		key, raw := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])

		if key == keyCount {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, fail("invalid count %q", raw)
			}
			if band < 0 {
				return nil, fail("%s before %s", key, keyStretch)
			}
			m.Bands[band].Count = n
			continue
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fail("invalid value %q for %s", raw, key)
		}
		if key == keyStretch {
			band = matchStretch(stretches, v)
			if band < 0 {
				return nil, fail("stretch %s matches no configured threshold", raw)
			}
			continue
		}
		if band < 0 {
			return nil, fail("%s before %s", key, keyStretch)
		}
		b := &m.Bands[band]
		switch key {
		case keyMean:
			b.Mean = v
		case keyStdDev:
			b.StdDev = v
		case keyLower:
			b.LowerPercentile = v
		case keyUpper:
			b.UpperPercentile = v
		default:
			return nil, fail("unknown key %q", key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return m, nil
}

func matchStretch(stretches Stretches, v float64) int {
	for i, s := range stretches {
		if math.Abs(s-v) < 1e-9 {
			return i
		}
	}
	return -1
}

// SaveModel writes m to path atomically.
func SaveModel(fsys fsutil.FileSystem, path string, m *Model) error {
	data, err := encodeModel(m)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, 0644); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

func encodeModel(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteModel(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadModel reads the model at path.
func LoadModel(fsys fsutil.FileSystem, path string, stretches Stretches) (*Model, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return ReadModel(bytes.NewReader(data), path, stretches)
}
