package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/growth.report/internal/monitoring"
	"github.com/banshee-data/growth.report/internal/pointcloud"
)

func writeRow(t *testing.T, path string, height float64) {
	t.Helper()
	pts := make([]pointcloud.Point, 12)
	for i := range pts {
		pts[i] = pointcloud.Point{X: float64(i) + 0.5, Y: 0.5, Z: height, Classification: 3}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pointcloud.WriteASC(f, pts))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	monitoring.SetLogger(nil)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEstimateShowPredictHistory(t *testing.T) {
	dir := t.TempDir()
	early := filepath.Join(dir, "plot_2020.asc")
	late := filepath.Join(dir, "plot_2023.asc")
	writeRow(t, early, 1.0)
	writeRow(t, late, 1.3)

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))
	db := filepath.Join(dir, "history.db")

	out, err := execute(t, "estimate", "--no-progress",
		"--out-dir", outDir, "--out-name", "plot",
		"--history-db", db,
		"--chart", filepath.Join(dir, "chart.html"),
		"--plot-dir", filepath.Join(dir, "plots"),
		"--metrics-file", filepath.Join(dir, "growth.prom"),
		early, late)
	require.NoError(t, err, out)
	assert.Contains(t, out, "12 samples")

	modelPath := filepath.Join(outDir, "plot.model.txt")
	for _, p := range []string{
		modelPath,
		filepath.Join(outDir, "plot.report.txt"),
		filepath.Join(dir, "chart.html"),
		filepath.Join(dir, "plots", "stretch_3_growth.png"),
		filepath.Join(dir, "growth.prom"),
	} {
		assert.FileExists(t, p)
	}

	out, err = execute(t, "show", "--model", modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "<2m")
	assert.Contains(t, out, "0.1000")

	out, err = execute(t, "predict", "--model", modelPath, "--height", "1.0", "--years", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "1.200 m")

	out, err = execute(t, "history", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "completed")
	runID := strings.Fields(lines[1])[0]

	out, err = execute(t, "history", "--db", db, runID)
	require.NoError(t, err)
	assert.Contains(t, out, "12 samples")
}

func TestEstimate_RequiresOutput(t *testing.T) {
	_, err := execute(t, "estimate", "--no-progress", "a_2020.asc")
	assert.ErrorContains(t, err, "--model")
}

func TestEstimate_RejectsTraversalInOutName(t *testing.T) {
	_, err := execute(t, "estimate", "--no-progress", "--out-name", "../evil", "a_2020.asc")
	assert.ErrorContains(t, err, "invalid output name")
}

func TestEstimate_InvalidFlagValue(t *testing.T) {
	_, err := execute(t, "estimate", "--no-progress", "--resolution", "-1", "--model", "m.txt", "a_2020.asc")
	assert.ErrorContains(t, err, "resolution")
}

func TestEstimate_PercentileFlagReachesConfig(t *testing.T) {
	_, err := execute(t, "estimate", "--no-progress", "--percentile", "40", "--model", "m.txt", "a_2020.asc")
	assert.ErrorContains(t, err, "percentile must be between 50 and 100")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "growth.report")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 130, exitCode(errCanceled))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
