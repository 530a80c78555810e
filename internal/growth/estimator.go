package growth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/growth.report/internal/config"
	"github.com/banshee-data/growth.report/internal/fsutil"
	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/pointcloud"
	"github.com/banshee-data/growth.report/internal/timeutil"
	"github.com/banshee-data/growth.report/internal/version"
)

// Status is the terminal state of an estimation run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Request names the inputs and outputs of one run.
type Request struct {
	Paths []string
	// Update merges the new statistics into the model at ModelPath.
	Update     bool
	ModelPath  string
	ReportPath string
}

// Result is the outcome of a run. Err is set when Status is StatusFailed.
type Result struct {
	RunID    string
	Status   Status
	Err      error
	Files    []InputFile
	Groups   YearGroups
	Samples  *Samples
	Summary  MatchSummary
	Model    *Model
	Started  time.Time
	Finished time.Time
}

// Estimator runs the full pipeline: classify, bin, match, aggregate and
// persist.
type Estimator struct {
	Config   *config.GrowthConfig
	Opener   pointcloud.Opener
	FS       fsutil.FileSystem
	CRS      CRSValidator
	Progress ProgressSink
	Metrics  *monitoring.RunMetrics
	Clock    timeutil.Clock
}

// NewEstimator creates an Estimator reading ASC files from the OS
// filesystem.
func NewEstimator(cfg *config.GrowthConfig) *Estimator {
	fsys := fsutil.OSFileSystem{}
	return &Estimator{
		Config:   cfg,
		Opener:   &pointcloud.ASCOpener{FS: fsys},
		FS:       fsys,
		CRS:      EPSGValidator{AllowEmpty: true},
		Progress: NopProgress{},
		Clock:    timeutil.RealClock{},
	}
}

func (e *Estimator) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}

// Estimate runs req. The returned Result is never nil; the error is the
// Result's Err. Cancellation is not an error.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Started: e.now()}
	fail := func(err error) (*Result, error) {
		res.Status = StatusFailed
		res.Err = err
		res.Finished = e.now()
		monitoring.Logf("[growth] run %s failed: %v", res.RunID, err)
		return res, err
	}

	cfg := e.Config
	if cfg == nil {
		cfg = config.EmptyGrowthConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fail(fmt.Errorf("invalid configuration: %w", err))
	}
	stretches := Stretches(cfg.GetStretches())
	if err := stretches.Validate(); err != nil {
		return fail(fmt.Errorf("invalid configuration: %w", err))
	}
	if e.CRS != nil {
		if err := e.CRS.ValidateCRS(cfg.GetCRS()); err != nil {
			return fail(err)
		}
	}
	if len(req.Paths) == 0 {
		return fail(errors.New("no input files"))
	}

	files, groups, err := ClassifyYears(req.Paths, cfg.GetMinYear(), cfg.GetYearDelimiter())
	if err != nil {
		return fail(err)
	}
	res.Files, res.Groups = files, groups
	if len(groups) < 2 {
		monitoring.Logf("[growth] only one acquisition year; no growth can be measured")
	}

	var prev *Model
	if req.Update {
		prev, err = e.loadPrevious(req.ModelPath, stretches)
		if err != nil {
			return fail(err)
		}
	}

	progress := e.Progress
	if progress == nil {
		progress = NopProgress{}
	}
	coord := &Coordinator{
		Builder:    NewGridBuilder(cfg.GetResolution(), cfg.GetVegetationClasses()),
		Opener:     e.Opener,
		Concurrent: cfg.GetConcurrent(),
		Workers:    cfg.GetWorkers(),
		Progress:   progress,
		Metrics:    e.Metrics,
		Clock:      e.Clock,
	}
	store, outcome, err := coord.Run(ctx, files)
	if err != nil {
		return fail(err)
	}
	if outcome == OutcomeCanceled {
		res.Status = StatusCanceled
		res.Finished = e.now()
		monitoring.Logf("[growth] run %s canceled; nothing written", res.RunID)
		return res, nil
	}

	samples, summary := MatchYears(groups, store, cfg.GetResolution(), stretches)
	store.Release()
	res.Samples, res.Summary = samples, summary
	for i, b := range samples.ByStretch {
		e.Metrics.AddSamples(i, len(b))
	}

	model := Aggregate(prev, stretches, samples, AggregateOptions{
		MinSamples: cfg.GetMinSamples(),
		Percentile: cfg.GetPercentile(),
	})
	res.Model = model

	var report bytes.Buffer
	if req.ReportPath != "" {
		workers := cfg.GetWorkers()
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		err := WriteReport(&report, &Report{
			Version:    version.String(),
			RunID:      res.RunID,
			CRS:        cfg.GetCRS(),
			Resolution: cfg.GetResolution(),
			Concurrent: cfg.GetConcurrent(),
			Workers:    workers,
			Updated:    prev != nil,
			Files:      files,
			Groups:     groups,
			Summary:    summary,
			Samples:    samples.Total(),
			Model:      model,
			Started:    res.Started,
			Finished:   e.now(),
		})
		if err != nil {
			return fail(fmt.Errorf("failed to render report: %w", err))
		}
	}

	// The model goes last: if it cannot be replaced the report is withdrawn
	// and the previous model stays the only result on disk.
	var outputs []fsutil.StagedFile
	if req.ReportPath != "" {
		outputs = append(outputs, fsutil.StagedFile{Name: req.ReportPath, Data: report.Bytes()})
	}
	if req.ModelPath != "" {
		data, err := encodeModel(model)
		if err != nil {
			return fail(fmt.Errorf("failed to encode model: %w", err))
		}
		outputs = append(outputs, fsutil.StagedFile{Name: req.ModelPath, Data: data})
	}
	if err := fsutil.WriteFilesAtomic(e.FS, outputs, 0644); err != nil {
		return fail(fmt.Errorf("failed to save outputs: %w", err))
	}

	res.Status = StatusCompleted
	res.Finished = e.now()
	e.Metrics.ObserveDuration(res.Finished.Sub(res.Started))
	monitoring.Logf("[growth] run %s completed: %d files, %d years, %d samples",
		res.RunID, len(files), len(groups), samples.Total())
	return res, nil
}

// loadPrevious reads the model to update. A missing file starts a fresh
// model with a warning.
func (e *Estimator) loadPrevious(path string, stretches Stretches) (*Model, error) {
	if path == "" {
		return nil, errors.New("update requested without a model path")
	}
	m, err := LoadModel(e.FS, path, stretches)
	if errors.Is(err, fs.ErrNotExist) {
		monitoring.Logf("[growth] warning: model %s does not exist; starting a new model", path)
		return nil, nil
	}
	return m, err
}
