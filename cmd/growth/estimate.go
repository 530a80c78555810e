package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/growth.report/internal/config"
	"github.com/banshee-data/growth.report/internal/fsutil"
	"github.com/banshee-data/growth.report/internal/growth"
	"github.com/banshee-data/growth.report/internal/growth/plots"
	"github.com/banshee-data/growth.report/internal/growth/storage/sqlite"
	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/security"
)

const defaultOutName = "growth"

type estimateOptions struct {
	configPath  string
	resolution  float64
	crs         string
	concurrent  bool
	workers     int
	minSamples  int
	percentile  float64
	update      bool
	modelPath   string
	outDir      string
	outName     string
	reportPath  string
	plotDir     string
	chartPath   string
	historyDB   string
	metricsFile string
	noProgress  bool
}

func newEstimateCmd() *cobra.Command {
	o := &estimateOptions{}
	cmd := &cobra.Command{
		Use:   "estimate [flags] FILE...",
		Short: "Estimate growth statistics from point clouds of several years",
		Long: `Estimate bins the vegetation points of every file into a height grid,
matches cells between all pairs of acquisition years and writes the growth
statistics per height stretch to a model file. The acquisition year is taken
from the file name, e.g. forest_2020.asc.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Config file (.json, .yaml or .yml)")
	f.Float64Var(&o.resolution, "resolution", 1.0, "Grid cell size in metres")
	f.StringVar(&o.crs, "crs", "", "Coordinate reference system, e.g. EPSG:25832")
	f.BoolVar(&o.concurrent, "concurrent", false, "Process files concurrently")
	f.IntVar(&o.workers, "workers", 0, "Concurrent workers (0 = GOMAXPROCS)")
	f.IntVar(&o.minSamples, "min-samples", 10, "Minimum samples for a stretch to get statistics")
	f.Float64Var(&o.percentile, "percentile", 95, "Trimming percentile for the statistics (50-100)")
	f.BoolVar(&o.update, "update", false, "Merge into the existing model instead of replacing it")
	f.StringVar(&o.modelPath, "model", "", "Model file path")
	f.StringVar(&o.outDir, "out-dir", "", "Output directory for model and report")
	f.StringVar(&o.outName, "out-name", "", "Base name of model and report files (default \"growth\")")
	f.StringVar(&o.reportPath, "report", "", "Report file path")
	f.StringVar(&o.plotDir, "plot-dir", "", "Write growth histograms per stretch into this directory")
	f.StringVar(&o.chartPath, "chart", "", "Write an HTML chart of the model")
	f.StringVar(&o.historyDB, "history-db", "", "Record the run in this sqlite database")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	f.BoolVar(&o.noProgress, "no-progress", false, "Disable progress output")
	return cmd
}

// resolveOutputs returns the model and report paths.
func (o *estimateOptions) resolveOutputs() (modelPath, reportPath string, err error) {
	if o.modelPath == "" && o.outDir == "" && o.outName == "" {
		return "", "", errors.New("one of --model, --out-dir or --out-name is required")
	}
	name := o.outName
	if name == "" {
		name = defaultOutName
	}
	modelPath = o.modelPath
	if modelPath == "" {
		if modelPath, err = security.ResolveOutputPath(o.outDir, name, ".model.txt"); err != nil {
			return "", "", fmt.Errorf("invalid output name: %w", err)
		}
	}
	reportPath = o.reportPath
	if reportPath == "" {
		if reportPath, err = security.ResolveOutputPath(o.outDir, name, ".report.txt"); err != nil {
			return "", "", fmt.Errorf("invalid output name: %w", err)
		}
	}
	return modelPath, reportPath, nil
}

// buildConfig layers the config file, GROWTH_* variables and flags.
func (o *estimateOptions) buildConfig(cmd *cobra.Command) (*config.GrowthConfig, error) {
	cfg := config.EmptyGrowthConfig()
	if o.configPath != "" {
		loaded, err := config.LoadGrowthConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.Resolution = &o.resolution
	}
	if flags.Changed("crs") {
		cfg.CRS = &o.crs
	}
	if flags.Changed("concurrent") {
		cfg.Concurrent = &o.concurrent
	}
	if flags.Changed("workers") {
		cfg.Workers = &o.workers
	}
	if flags.Changed("min-samples") {
		cfg.MinSamples = &o.minSamples
	}
	if flags.Changed("percentile") {
		cfg.Percentile = &o.percentile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runEstimate(cmd *cobra.Command, o *estimateOptions, paths []string) error {
	cfg, err := o.buildConfig(cmd)
	if err != nil {
		return err
	}
	modelPath, reportPath, err := o.resolveOutputs()
	if err != nil {
		return err
	}

	var metrics *monitoring.RunMetrics
	if o.metricsFile != "" {
		metrics = monitoring.NewRunMetrics()
	}

	est := growth.NewEstimator(cfg)
	est.Metrics = metrics
	if !o.noProgress {
		est.Progress = growth.NewTerminalProgress(os.Stderr)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, runErr := est.Estimate(ctx, growth.Request{
		Paths:      paths,
		Update:     o.update,
		ModelPath:  modelPath,
		ReportPath: reportPath,
	})

	if o.historyDB != "" {
		if err := recordHistory(o.historyDB, res, cfg, modelPath); err != nil {
			monitoring.Logf("[history] %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if res.Status == growth.StatusCanceled {
		return errCanceled
	}

	fsys := fsutil.OSFileSystem{}
	if o.plotDir != "" {
		if _, err := plots.WriteHistograms(fsys, o.plotDir, res.Samples, res.Model.Stretches); err != nil {
			return fmt.Errorf("failed to write histograms: %w", err)
		}
	}
	if o.chartPath != "" {
		var buf bytes.Buffer
		if err := plots.RenderBandChart(&buf, res.Model, "run "+res.RunID); err != nil {
			return fmt.Errorf("failed to render chart: %w", err)
		}
		if err := fsutil.WriteFileAtomic(fsys, o.chartPath, buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	if metrics != nil {
		if err := metrics.WriteMetricsFile(o.metricsFile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d files, %d years, %d samples\n", res.RunID, len(res.Files), len(res.Groups), res.Samples.Total())
	fmt.Fprintf(out, "model:  %s\n", modelPath)
	fmt.Fprintf(out, "report: %s\n", reportPath)
	return nil
}

func recordHistory(path string, res *growth.Result, cfg *config.GrowthConfig, modelPath string) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	run := sqlite.RunFromResult(res, cfg.GetCRS(), cfg.GetResolution(), cfg.GetConcurrent(), modelPath)
	return store.RecordRun(context.Background(), run)
}
