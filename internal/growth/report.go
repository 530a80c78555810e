package growth

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Report describes one estimation run in human-readable form.
type Report struct {
	Version    string
	RunID      string
	CRS        string
	Resolution float64
	Concurrent bool
	Workers    int
	Updated    bool
	Files      []InputFile
	Groups     YearGroups
	Summary    MatchSummary
	Samples    int
	Model      *Model
	Started    time.Time
	Finished   time.Time
}

// WriteReport writes r as plain text.
func WriteReport(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	mode := "sequential"
	if r.Concurrent {
		mode = fmt.Sprintf("concurrent (%d workers)", r.Workers)
	}
	crs := r.CRS
	if crs == "" {
		crs = "unspecified"
	}

	fmt.Fprintln(bw, "Vegetation growth report")
	fmt.Fprintf(bw, "Version:    %s\n", r.Version)
	fmt.Fprintf(bw, "Run:        %s\n", r.RunID)
	fmt.Fprintf(bw, "Started:    %s\n", r.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "Duration:   %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Fprintf(bw, "CRS:        %s\n", crs)
	fmt.Fprintf(bw, "Resolution: %s m\n", formatFloat(r.Resolution))
	fmt.Fprintf(bw, "Mode:       %s\n", mode)
	fmt.Fprintf(bw, "Updated:    %t\n", r.Updated)
	fmt.Fprintf(bw, "Inputs:     %d files\n", len(r.Files))

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Years")
	for _, y := range r.Groups.Years() {
		names := make([]string, 0, len(r.Groups[y]))
		for _, i := range r.Groups[y] {
			names = append(names, r.Files[i].Name())
		}
		fmt.Fprintf(bw, "  %d: %s\n", y, strings.Join(names, ", "))
	}

	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Matching: %d year pairs, %d file pairs compared, %d without overlap, %d matched cells, %d not growing, %d above last stretch\n",
		r.Summary.YearPairs, r.Summary.FilePairs, r.Summary.SkippedPairs, r.Summary.MatchedCells, r.Summary.NotGrowing, r.Summary.OutOfBands)

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Stretches (m/year)")
	if r.Model != nil {
		for i, b := range r.Model.Bands {
			label := r.Model.Stretches.Label(i)
			if b.Count == 0 {
				fmt.Fprintf(bw, "  %-8s no values\n", label)
				continue
			}
			fmt.Fprintf(bw, "  %-8s n=%d mean=%.4f sd=%.4f p_low=%.4f p_high=%.4f\n",
				label, b.Count, b.Mean, b.StdDev, b.LowerPercentile, b.UpperPercentile)
		}
	}
	fmt.Fprintf(bw, "Total samples: %d\n", r.Samples)
	return bw.Flush()
}
