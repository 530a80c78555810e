package growth

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/growth.report/internal/fsutil"
	"github.com/banshee-data/growth.report/internal/pointcloud"
	"github.com/banshee-data/growth.report/internal/timeutil"
)

// scenarioOpener holds a 10-cell row measured in 2020 at 1.0 m and in 2023
// at 1.3 m, split across two tiles per year.
func scenarioOpener() *pointcloud.MemoryOpener {
	opener := pointcloud.NewMemoryOpener()
	opener.AddWithBounds("west_2020.asc", rowBounds(10), rowPoints(repeat(1.0, 10)...))
	opener.AddWithBounds("west_2023.asc", rowBounds(10), rowPoints(repeat(1.3, 10)...))
	return opener
}

func newTestEstimator(opener pointcloud.Opener, fsys fsutil.FileSystem) *Estimator {
	return &Estimator{
		Config:   testConfig(),
		Opener:   opener,
		FS:       fsys,
		CRS:      EPSGValidator{AllowEmpty: true},
		Progress: NopProgress{},
	}
}

func TestEstimate_TwoYearScenario(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	e := newTestEstimator(scenarioOpener(), fsys)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.Clock = timeutil.NewMockClock(start)

	res, err := e.Estimate(context.Background(), Request{
		Paths:      []string{"west_2023.asc", "west_2020.asc"},
		ModelPath:  "growth.model.txt",
		ReportPath: "growth.report.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, start, res.Started)
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)

	band := res.Model.Bands[3]
	assert.Equal(t, 10, band.Count)
	assert.InDelta(t, 0.10, band.Mean, 1e-12)
	assert.Equal(t, 0.0, band.StdDev)

	stored, err := LoadModel(fsys, "growth.model.txt", testStretches)
	require.NoError(t, err)
	if diff := cmp.Diff(res.Model, stored); diff != "" {
		t.Fatalf("stored model differs (-want +got):\n%s", diff)
	}

	report, err := fsys.ReadFile("growth.report.txt")
	require.NoError(t, err)
	text := string(report)
	assert.Contains(t, text, res.RunID)
	assert.Contains(t, text, "Started:    2024-05-01T12:00:00Z")
	assert.Contains(t, text, "2020: west_2020.asc")
	assert.Contains(t, text, "<2m")
	assert.Contains(t, text, "Total samples: 10")
	assert.Contains(t, text, "no values")
}

func TestEstimate_SequentialEqualsConcurrent(t *testing.T) {
	opener := pointcloud.NewMemoryOpener()
	paths := []string{}
	for i, year := range []string{"2015", "2017", "2020"} {
		for tile := 0; tile < 3; tile++ {
			heights := make([]float64, 30)
			for j := range heights {
				heights[j] = 0.05*float64(j) + 0.2*float64(i) + 0.01*float64(tile*j%7)
			}
			path := "tile" + string(rune('a'+tile)) + "_" + year + ".asc"
			opener.AddWithBounds(path, rowBounds(30), rowPoints(heights...))
			paths = append(paths, path)
		}
	}

	seqCfg := testConfig()
	seqCfg.MinSamples = ptr(2)
	seq := newTestEstimator(opener, fsutil.NewMemoryFileSystem())
	seq.Config = seqCfg
	a, err := seq.Estimate(context.Background(), Request{Paths: paths, ModelPath: "m.txt"})
	require.NoError(t, err)

	concCfg := testConfig()
	concCfg.MinSamples = ptr(2)
	concCfg.Concurrent = ptr(true)
	concCfg.Workers = ptr(4)
	conc := newTestEstimator(opener, fsutil.NewMemoryFileSystem())
	conc.Config = concCfg
	b, err := conc.Estimate(context.Background(), Request{Paths: paths, ModelPath: "m.txt"})
	require.NoError(t, err)

	assert.Greater(t, a.Samples.Total(), 0)
	if diff := cmp.Diff(a.Model, b.Model); diff != "" {
		t.Fatalf("concurrent model differs (-seq +conc):\n%s", diff)
	}
}

func TestEstimate_SingleYear(t *testing.T) {
	opener := pointcloud.NewMemoryOpener()
	opener.AddWithBounds("a_2021.asc", rowBounds(3), rowPoints(1, 2, 3))
	fsys := fsutil.NewMemoryFileSystem()

	res, err := newTestEstimator(opener, fsys).Estimate(context.Background(), Request{
		Paths: []string{"a_2021.asc"}, ModelPath: "m.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.Model.TotalCount())

	data, err := fsys.ReadFile("m.txt")
	require.NoError(t, err)
	assert.Equal(t, 1+2*len(testStretches), strings.Count(string(data), "\n"))
}

func TestEstimate_NamingErrorsBeforeReading(t *testing.T) {
	opened := false
	opener := pointcloud.OpenerFunc(func(path string) (pointcloud.Reader, error) {
		opened = true
		return nil, errors.New("unexpected open")
	})
	fsys := fsutil.NewMemoryFileSystem()

	res, err := newTestEstimator(opener, fsys).Estimate(context.Background(), Request{
		Paths: []string{"a_2020.asc", "nodate.asc"}, ModelPath: "m.txt",
	})
	require.ErrorIs(t, err, ErrNoYear)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, err, res.Err)
	assert.False(t, opened)
	assert.Empty(t, fsys.Files())
}

func TestEstimate_InvalidCRS(t *testing.T) {
	e := newTestEstimator(scenarioOpener(), fsutil.NewMemoryFileSystem())
	e.Config.CRS = ptr("WGS84")
	res, err := e.Estimate(context.Background(), Request{Paths: []string{"west_2020.asc"}, ModelPath: "m.txt"})
	require.ErrorIs(t, err, ErrInvalidCRS)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestEstimate_InvalidConfig(t *testing.T) {
	e := newTestEstimator(scenarioOpener(), fsutil.NewMemoryFileSystem())
	e.Config.Resolution = ptr(0.0)
	_, err := e.Estimate(context.Background(), Request{Paths: []string{"west_2020.asc"}, ModelPath: "m.txt"})
	assert.ErrorContains(t, err, "resolution")
}

func TestEstimate_CanceledWritesNothing(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	e := newTestEstimator(scenarioOpener(), fsys)
	flag := &CancelFlag{}
	flag.Cancel()
	e.Progress = flag

	res, err := e.Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "west_2023.asc"}, ModelPath: "m.txt", ReportPath: "r.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
	assert.Nil(t, res.Model)
	assert.Empty(t, fsys.Files())
}

func TestEstimate_DomainErrorFailsRun(t *testing.T) {
	opener := scenarioOpener()
	opener.AddWithBounds("east_2023.asc", rowBounds(1), rowPoints(80))
	fsys := fsutil.NewMemoryFileSystem()

	res, err := newTestEstimator(opener, fsys).Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "east_2023.asc"}, ModelPath: "m.txt",
	})
	require.ErrorIs(t, err, ErrHeightDomain)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, fsys.Files())
}

func TestEstimate_UpdateMissingModelStartsFresh(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res, err := newTestEstimator(scenarioOpener(), fsys).Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "west_2023.asc"}, ModelPath: "m.txt", Update: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Model.Bands[3].Count)
}

func TestEstimate_UpdateMergesExistingModel(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	prev := NewModel(testStretches)
	prev.Bands[3] = BandStatistics{Count: 5, Mean: 0.5, StdDev: 0.1, LowerPercentile: 0.3, UpperPercentile: 0.7}
	prev.Bands[0] = BandStatistics{Count: 7, Mean: 0.05, StdDev: 0.01, LowerPercentile: 0.01, UpperPercentile: 0.09}
	require.NoError(t, SaveModel(fsys, "m.txt", prev))

	opener := pointcloud.NewMemoryOpener()
	opener.AddWithBounds("v_2020.asc", rowBounds(12), rowPoints(repeat(1.0, 12)...))
	later := make([]float64, 12)
	for i := range later {
		later[i] = 1.0 + 0.1*float64(i+1)
	}
	opener.AddWithBounds("v_2022.asc", rowBounds(12), rowPoints(later...))

	res, err := newTestEstimator(opener, fsys).Estimate(context.Background(), Request{
		Paths: []string{"v_2020.asc", "v_2022.asc"}, ModelPath: "m.txt", Update: true,
	})
	require.NoError(t, err)

	merged := res.Model.Bands[3]
	assert.Equal(t, 17, merged.Count)
	assert.Equal(t, prev.Bands[0], res.Model.Bands[0])

	stored, err := LoadModel(fsys, "m.txt", testStretches)
	require.NoError(t, err)
	assert.Equal(t, res.Model.Bands, stored.Bands)
}

func TestEstimate_UpdateKeepsBandWhenNewBatchHasNoSpread(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	prev := NewModel(testStretches)
	prev.Bands[3] = BandStatistics{Count: 5, Mean: 0.5, StdDev: 0.1, LowerPercentile: 0.3, UpperPercentile: 0.7}
	require.NoError(t, SaveModel(fsys, "m.txt", prev))

	res, err := newTestEstimator(scenarioOpener(), fsys).Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "west_2023.asc"}, ModelPath: "m.txt", Update: true,
	})
	require.NoError(t, err)
	assert.Equal(t, prev.Bands[3], res.Model.Bands[3])
}

func TestEstimate_PersistenceFailureKeepsOldModel(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, SaveModel(fsys, "m.txt", NewModel(testStretches)))
	before, _ := fsys.ReadFile("m.txt")
	fsys.RenameErr = errors.New("read-only filesystem")

	res, err := newTestEstimator(scenarioOpener(), fsys).Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "west_2023.asc"}, ModelPath: "m.txt", ReportPath: "r.txt",
	})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	after, _ := fsys.ReadFile("m.txt")
	assert.Equal(t, before, after)
	assert.False(t, fsys.Exists("r.txt"))
}

// reportWriteFailure fails every write aimed at the report path.
type reportWriteFailure struct {
	*fsutil.MemoryFileSystem
	report string
}

func (f *reportWriteFailure) WriteFile(name string, data []byte, perm os.FileMode) error {
	if strings.HasPrefix(name, f.report) {
		return errors.New("disk full")
	}
	return f.MemoryFileSystem.WriteFile(name, data, perm)
}

func TestEstimate_ReportWriteFailureKeepsOldModel(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, SaveModel(mem, "m.txt", NewModel(testStretches)))
	before, _ := mem.ReadFile("m.txt")

	fsys := &reportWriteFailure{MemoryFileSystem: mem, report: "r.txt"}
	res, err := newTestEstimator(scenarioOpener(), fsys).Estimate(context.Background(), Request{
		Paths: []string{"west_2020.asc", "west_2023.asc"}, Update: true, ModelPath: "m.txt", ReportPath: "r.txt",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StatusFailed, res.Status)

	after, _ := mem.ReadFile("m.txt")
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"m.txt"}, mem.Files())
}
