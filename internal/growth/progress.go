package growth

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"

	"github.com/banshee-data/growth.report/internal/monitoring"
)

// ProgressSink receives progress updates and may request cancellation.
// Implementations must be safe for concurrent use.
type ProgressSink interface {
	// Report announces that current of total units are done.
	Report(current, total int)
	// IsCanceled reports whether the run should stop.
	IsCanceled() bool
}

// NopProgress discards progress and never cancels.
type NopProgress struct{}

func (NopProgress) Report(int, int)  {}
func (NopProgress) IsCanceled() bool { return false }

// CancelFlag is a ProgressSink whose cancellation is requested by calling
// Cancel. It wraps an optional inner sink for reporting.
type CancelFlag struct {
	Inner    ProgressSink
	canceled atomic.Bool
}

// Cancel requests cancellation.
func (f *CancelFlag) Cancel() { f.canceled.Store(true) }

// Report forwards to the inner sink.
func (f *CancelFlag) Report(current, total int) {
	if f.Inner != nil {
		f.Inner.Report(current, total)
	}
}

// IsCanceled reports whether Cancel was called or the inner sink cancels.
func (f *CancelFlag) IsCanceled() bool {
	if f.canceled.Load() {
		return true
	}
	return f.Inner != nil && f.Inner.IsCanceled()
}

// LogProgress writes progress through monitoring.Logf.
type LogProgress struct{}

func (LogProgress) Report(current, total int) {
	monitoring.Logf("[growth] processed %d/%d files", current, total)
}

func (LogProgress) IsCanceled() bool { return false }

// TerminalProgress redraws a single status line when attached to a
// terminal and falls back to one line per update otherwise.
type TerminalProgress struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

// NewTerminalProgress creates a TerminalProgress writing to f.
func NewTerminalProgress(f *os.File) *TerminalProgress {
	return &TerminalProgress{
		w:   f,
		tty: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (p *TerminalProgress) Report(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pct := 100.0
	if total > 0 {
		pct = 100 * float64(current) / float64(total)
	}
	if !p.tty {
		fmt.Fprintf(p.w, "processed %d/%d files (%.0f%%)\n", current, total, pct)
		return
	}
	fmt.Fprintf(p.w, "\rprocessed %d/%d files (%.0f%%)", current, total, pct)
	if current == total {
		fmt.Fprintln(p.w)
	}
}

func (p *TerminalProgress) IsCanceled() bool { return false }
