package growth

import (
	"errors"
	"io/fs"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/growth.report/internal/pointcloud"
)

func TestHeightGrid_UpdateKeepsMaximum(t *testing.T) {
	g := NewHeightGrid()
	c := Cell{X: 3, Y: 4}
	g.Update(c, 1200)
	g.Update(c, 800)
	g.Update(c, 1500)

	mm, ok := g.Get(c)
	require.True(t, ok)
	assert.Equal(t, uint16(1500), mm)
	assert.Equal(t, 1, g.Len())

	_, ok = g.Get(Cell{X: 4, Y: 3})
	assert.False(t, ok)
}

func TestHeightGrid_IdempotentAndCommutative(t *testing.T) {
	type upd struct {
		c  Cell
		mm uint16
	}
	var updates []upd
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		updates = append(updates, upd{Cell{X: uint16(rng.Intn(10)), Y: uint16(rng.Intn(10))}, uint16(rng.Intn(65536))})
	}

	ref := NewHeightGrid()
	for _, u := range updates {
		ref.Update(u.c, u.mm)
	}

	for trial := 0; trial < 5; trial++ {
		shuffled := append([]upd(nil), updates...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		g := NewHeightGrid()
		for _, u := range shuffled {
			g.Update(u.c, u.mm)
			g.Update(u.c, u.mm)
		}
		assert.True(t, ref.Equal(g), "trial %d differs", trial)
	}
}

func TestGridBuilder_CellOf(t *testing.T) {
	b := NewGridBuilder(0.5, []uint8{3})
	bounds := pointcloud.BoundingBox{MinX: 100, MinY: 200, MaxX: 200, MaxY: 300}

	c, err := b.CellOf(101.2, 200.49, bounds)
	require.NoError(t, err)
	assert.Equal(t, Cell{X: 2, Y: 0}, c)

	_, err = b.CellOf(99.9, 250, bounds)
	assert.ErrorIs(t, err, ErrGridDomain)

	// 65536 cells of 0.5 m end 32768 m from the origin.
	_, err = b.CellOf(100+32767.9, 200, bounds)
	assert.NoError(t, err)
	_, err = b.CellOf(100+32768.0, 200, bounds)
	assert.ErrorIs(t, err, ErrGridDomain)
}

func TestGridBuilder_Build(t *testing.T) {
	opener := pointcloud.NewMemoryOpener()
	pts := []pointcloud.Point{
		{X: 0.2, Y: 0.2, Z: 1.2344, Classification: 3},
		{X: 0.8, Y: 0.9, Z: 1.5006, Classification: 4},
		{X: 0.5, Y: 0.5, Z: 9.0, Classification: 2},
		{X: 1.5, Y: 0.5, Z: 0.3, Classification: 5},
		{X: 1.5, Y: 1.5, Z: 0.0, Classification: 3},
	}
	opener.AddWithBounds("a_2020.asc", pointcloud.BoundingBox{MaxX: 2, MaxY: 2}, pts)

	var streamed int64
	fg, err := NewGridBuilder(1.0, []uint8{3, 4}).Build(opener, "a_2020.asc", func(n int64) { streamed += n })
	require.NoError(t, err)

	assert.Equal(t, int64(5), fg.PointsRead)
	assert.Equal(t, int64(3), fg.PointsKept)
	assert.Equal(t, int64(5), streamed)
	assert.Equal(t, pointcloud.BoundingBox{MaxX: 2, MaxY: 2}, fg.Bounds)
	assert.Equal(t, 2, fg.Grid.Len())

	mm, _ := fg.Grid.Get(Cell{0, 0})
	assert.Equal(t, uint16(1501), mm)
	mm, ok := fg.Grid.Get(Cell{1, 1})
	assert.True(t, ok)
	assert.Equal(t, uint16(0), mm)
}

func TestGridBuilder_NoVegetationIsNotAnError(t *testing.T) {
	opener := pointcloud.NewMemoryOpener()
	opener.Add("bare_2020.asc", []pointcloud.Point{{X: 1, Y: 1, Z: 0.1, Classification: 2}})
	fg, err := BuildHeightGrid(opener, "bare_2020.asc", 1.0, []uint8{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 0, fg.Grid.Len())
}

func TestGridBuilder_DomainErrors(t *testing.T) {
	opener := pointcloud.NewMemoryOpener()
	opener.AddWithBounds("tall_2020.asc", pointcloud.BoundingBox{MaxX: 10, MaxY: 10},
		[]pointcloud.Point{{X: 1, Y: 1, Z: 70, Classification: 3}})
	opener.AddWithBounds("neg_2020.asc", pointcloud.BoundingBox{MaxX: 10, MaxY: 10},
		[]pointcloud.Point{{X: 1, Y: 1, Z: -0.5, Classification: 4}})
	opener.AddWithBounds("wide_2020.asc", pointcloud.BoundingBox{MaxX: 10, MaxY: 10},
		[]pointcloud.Point{{X: 70000, Y: 1, Z: 1, Classification: 3}})

	b := NewGridBuilder(1.0, []uint8{3, 4})

	_, err := b.Build(opener, "tall_2020.asc", nil)
	require.ErrorIs(t, err, ErrHeightDomain)
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "tall_2020.asc", de.File)
	assert.Contains(t, err.Error(), "tall_2020.asc")

	fg, err := b.Build(opener, "neg_2020.asc", nil)
	require.NoError(t, err)
	h, ok := fg.Grid.Get(Cell{X: 1, Y: 1})
	require.True(t, ok)
	assert.Equal(t, uint16(0), h, "negative heights clamp to the ground")

	_, err = b.Build(opener, "wide_2020.asc", nil)
	require.ErrorIs(t, err, ErrGridDomain)
	assert.Contains(t, err.Error(), "70000.000")
}

func TestGridBuilder_OpenFailure(t *testing.T) {
	_, err := NewGridBuilder(1, []uint8{3}).Build(pointcloud.NewMemoryOpener(), "missing_2020.asc", nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
