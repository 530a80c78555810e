package growth

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// InputFile is a point-cloud file with its inferred acquisition year and its
// position in the input list.
type InputFile struct {
	Path  string
	Year  int
	Index int
}

// Name returns the file's base name.
func (f InputFile) Name() string {
	return filepath.Base(f.Path)
}

// YearGroups maps an acquisition year to the indices of its files, in input
// order.
type YearGroups map[int][]int

// Years returns the years in ascending order.
func (g YearGroups) Years() []int {
	years := make([]int, 0, len(g))
	for y := range g {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// YearClassifier infers acquisition years from file names.
type YearClassifier struct {
	MinYear   int
	Delimiter string
}

// YearOf returns the single year token of path. The base name without
// extension is split on the delimiter; a token is a year candidate when it is
// four characters long and parses to an integer of at least MinYear.
func (c YearClassifier) YearOf(path string) (int, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var candidates []int
	for _, tok := range strings.Split(base, c.Delimiter) {
		if len(tok) != 4 {
			continue
		}
		y, err := strconv.Atoi(tok)
		if err != nil || y < c.MinYear {
			continue
		}
		candidates = append(candidates, y)
	}

	switch len(candidates) {
	case 0:
		return 0, fmt.Errorf("%s: %w", path, ErrNoYear)
	case 1:
		return candidates[0], nil
	default:
		return 0, fmt.Errorf("%s: %w (candidates %v)", path, ErrAmbiguousYear, candidates)
	}
}

// Classify assigns a year to every path. All naming problems are collected
// into one error so the caller can report them together; no file is opened.
func (c YearClassifier) Classify(paths []string) ([]InputFile, YearGroups, error) {
	files := make([]InputFile, 0, len(paths))
	groups := make(YearGroups)
	var errs []error

	for i, p := range paths {
		year, err := c.YearOf(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, InputFile{Path: p, Year: year, Index: i})
		groups[year] = append(groups[year], i)
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	return files, groups, nil
}

// ClassifyYears classifies paths with the given minimum year and delimiter.
func ClassifyYears(paths []string, minYear int, delimiter string) ([]InputFile, YearGroups, error) {
	return YearClassifier{MinYear: minYear, Delimiter: delimiter}.Classify(paths)
}
