package growth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/pointcloud"
	"github.com/banshee-data/growth.report/internal/timeutil"
)

// Outcome is the terminal state of a coordinator run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
)

func (o Outcome) String() string {
	if o == OutcomeCanceled {
		return "canceled"
	}
	return "completed"
}

// ResultStore holds the grid and bounds of every input file, indexed by input
// position. Workers publish into it under a single mutex; after the run it is
// read without further writes.
type ResultStore struct {
	mu        sync.Mutex
	grids     []*HeightGrid
	bounds    []pointcloud.BoundingBox
	remaining []int64
	done      int
}

// NewResultStore creates a store for n files.
func NewResultStore(n int) *ResultStore {
	return &ResultStore{
		grids:     make([]*HeightGrid, n),
		bounds:    make([]pointcloud.BoundingBox, n),
		remaining: make([]int64, n),
	}
}

// Len returns the number of file slots.
func (s *ResultStore) Len() int { return len(s.grids) }

// Publish stores the grid of file i and returns the number of published files.
func (s *ResultStore) Publish(i int, fg *FileGrid) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[i] = fg.Grid
	s.bounds[i] = fg.Bounds
	s.remaining[i] = 0
	s.done++
	return s.done
}

func (s *ResultStore) setRemaining(i int, n int64) {
	s.mu.Lock()
	s.remaining[i] = n
	s.mu.Unlock()
}

func (s *ResultStore) consume(i int, n int64) {
	s.mu.Lock()
	s.remaining[i] -= n
	if s.remaining[i] < 0 {
		s.remaining[i] = 0
	}
	s.mu.Unlock()
}

// Remaining returns the number of points still to be streamed across all
// files that have been opened but not published.
func (s *ResultStore) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.remaining {
		n += r
	}
	return n
}

// Grid returns the grid of file i, or nil when it was not published.
func (s *ResultStore) Grid(i int) *HeightGrid { return s.grids[i] }

// Bounds returns the bounding box of file i.
func (s *ResultStore) Bounds(i int) pointcloud.BoundingBox { return s.bounds[i] }

// Release drops all grids so their memory can be reclaimed.
func (s *ResultStore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.grids {
		s.grids[i] = nil
	}
}

// DefaultPollInterval is how often the concurrent mode polls the progress
// sink for cancellation.
const DefaultPollInterval = 100 * time.Millisecond

// Coordinator builds the height grids of all input files, one after another
// or through a bounded pool of workers.
type Coordinator struct {
	Builder    *GridBuilder
	Opener     pointcloud.Opener
	Concurrent bool
	// Workers bounds the pool in concurrent mode; 0 means GOMAXPROCS.
	Workers      int
	Progress     ProgressSink
	Metrics      *monitoring.RunMetrics
	PollInterval time.Duration
	// Clock drives the cancellation poll; nil means the real clock.
	Clock timeutil.Clock
}

// Run processes files and returns the populated store. A cancellation
// requested through ctx or the progress sink yields OutcomeCanceled with a nil
// error; any file error aborts the run and the first one is returned.
func (c *Coordinator) Run(ctx context.Context, files []InputFile) (*ResultStore, Outcome, error) {
	progress := c.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	store := NewResultStore(len(files))
	if c.Concurrent {
		return c.runConcurrent(ctx, files, store, progress)
	}
	return c.runSequential(ctx, files, store, progress)
}

func canceled(ctx context.Context, progress ProgressSink) bool {
	return ctx.Err() != nil || progress.IsCanceled()
}

func (c *Coordinator) runSequential(ctx context.Context, files []InputFile, store *ResultStore, progress ProgressSink) (*ResultStore, Outcome, error) {
	n := len(files)
	for i, f := range files {
		if canceled(ctx, progress) {
			monitoring.Logf("[coordinator] canceled after %d/%d files", i, n)
			return nil, OutcomeCanceled, nil
		}
		fg, err := c.Builder.Build(c.Opener, f.Path, nil)
		if err != nil {
			return nil, OutcomeCompleted, err
		}
		c.Metrics.FileDone(fg.PointsRead, fg.PointsKept)
		monitoring.Debugf("[coordinator] %s: %d cells from %d/%d points", f.Name(), fg.Grid.Len(), fg.PointsKept, fg.PointsRead)
		store.Publish(i, fg)
		progress.Report(i+1, n)
	}
	return store, OutcomeCompleted, nil
}

func (c *Coordinator) runConcurrent(parent context.Context, files []InputFile, store *ResultStore, progress ProgressSink) (*ResultStore, Outcome, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var canceledBySink bool
	var watchMu sync.Mutex
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		interval := c.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		clock := c.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if progress.IsCanceled() {
					watchMu.Lock()
					canceledBySink = true
					watchMu.Unlock()
					cancel()
					return
				}
				monitoring.Debugf("[coordinator] %d points in flight", store.Remaining())
			}
		}
	}()

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	n := len(files)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fg, err := c.Builder.Build(c.countingOpener(store, i), f.Path, func(streamed int64) {
				store.consume(i, streamed)
			})
			if err != nil {
				return err
			}
			c.Metrics.FileDone(fg.PointsRead, fg.PointsKept)
			done := store.Publish(i, fg)
			progress.Report(done, n)
			return nil
		})
	}
	err := g.Wait()
	cancel()
	<-watchDone

	watchMu.Lock()
	sinkCanceled := canceledBySink
	watchMu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) && (sinkCanceled || parent.Err() != nil) {
			monitoring.Logf("[coordinator] canceled; discarding partial results")
			return nil, OutcomeCanceled, nil
		}
		return nil, OutcomeCompleted, err
	}
	return store, OutcomeCompleted, nil
}

// countingOpener records the header point count of file i as its remaining
// work once the file is opened.
func (c *Coordinator) countingOpener(store *ResultStore, i int) pointcloud.Opener {
	return pointcloud.OpenerFunc(func(path string) (pointcloud.Reader, error) {
		r, err := c.Opener.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		store.setRemaining(i, r.Header().PointCount)
		return r, nil
	})
}
