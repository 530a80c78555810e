package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/growth.report/internal/growth"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	model := growth.NewModel(growth.Stretches{0.25, 0.5, 1.0, 2.0, 3.0, 5.0})
	model.Bands[3] = growth.BandStatistics{Count: 10, Mean: 0.1, StdDev: 0.01, LowerPercentile: 0.05, UpperPercentile: 0.2}
	samples := growth.NewSamples(6)
	samples.ByStretch[3] = make([]uint16, 10)
	started := time.Unix(1700000000, 123)
	res := &growth.Result{
		RunID:    "run-1",
		Status:   growth.StatusCompleted,
		Files:    []growth.InputFile{{Path: "a_2020.asc"}, {Path: "a_2023.asc"}},
		Groups:   growth.YearGroups{2020: {0}, 2023: {1}},
		Samples:  samples,
		Model:    model,
		Started:  started,
		Finished: started.Add(3 * time.Second),
	}

	run := RunFromResult(res, "EPSG:25832", 0.5, true, "m.txt")
	require.NoError(t, s.RecordRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(run, *got); diff != "" {
		t.Fatalf("stored run mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 10, got.SampleCount)
	assert.Len(t, got.Bands, 6)

	_, err = s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	assert.Error(t, s.RecordRun(ctx, run), "duplicate run id")
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i, id := range []string{"a", "b", "c"} {
		run := Run{
			ID:       id,
			Started:  base.Add(time.Duration(i) * time.Hour),
			Finished: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:   growth.StatusFailed,
			Error:    "boom",
		}
		require.NoError(t, s.RecordRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Empty(t, runs[0].Bands)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
