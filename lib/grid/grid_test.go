package grid

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCellDimensions(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 0, Y1: 0, X2: 400, Y2: 100})
	g.CalculateCellDimensions(10*1024, 1024)
	assert.GreaterOrEqual(t, g.NumCells(), 10)
	assert.Greater(t, g.Columns, g.Rows, "wide extent gets more columns")

	g.CalculateCellDimensions(0, 1024)
	assert.Equal(t, 1, g.NumCells())

	g.CalculateCellCount(1)
	assert.Equal(t, 1, g.Columns)
	assert.Equal(t, 1, g.Rows)
}

func TestPointExtentKeepsOneCell(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 5, Y1: 5, X2: 5, Y2: 5})
	g.CalculateCellCount(8)
	assert.Equal(t, 1, g.NumCells())

	// a segment still splits along its long side
	g = NewGridInfo(shape.Rect{X1: 0, Y1: 5, X2: 10, Y2: 5})
	g.CalculateCellCount(4)
	assert.Equal(t, 4, g.Columns)
	assert.Equal(t, 1, g.Rows)
}

func TestUniformTiling(t *testing.T) {
	extent := shape.Rect{X1: -180, Y1: -90, X2: 180, Y2: 90}
	g := NewGridInfo(extent)
	g.CalculateCellCount(37)
	cells := g.AllCells()
	require.Len(t, cells, g.NumCells())

	union := shape.EmptyRect()
	area := 0.0
	ids := map[int64]bool{}
	for i, c := range cells {
		union = union.Expand(c.Rect)
		area += c.Area()
		assert.False(t, ids[c.ID], "duplicate id %d", c.ID)
		ids[c.ID] = true
		for j := i + 1; j < len(cells); j++ {
			if in, ok := c.Intersection(cells[j].Rect); ok {
				assert.InDelta(t, 0, in.Area(), 1e-9)
			}
		}
	}
	assert.Equal(t, extent, union)
	assert.InDelta(t, extent.Area(), area, 1e-6)
}

func TestUniformLookupMatchesScan(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 0, Y1: 0, X2: 1000, Y2: 500})
	g.CalculateCellCount(24)
	fast := NewUniformTable(g)
	slow := NewCellTable(g.AllCells())

	faker := gofakeit.New(0)
	for i := 0; i < 500; i++ {
		x, y := faker.Float64Range(-50, 1050), faker.Float64Range(-50, 550)
		r := *shape.NewRect(x, y, x+faker.Float64Range(0, 300), y+faker.Float64Range(0, 200))
		if i%10 == 0 {
			// land exactly on a cell boundary
			r.X1 = g.X0 + g.CellWidth*2
		}
		assert.Equal(t, ids(slow.Overlapping(nil, r)), ids(fast.Overlapping(nil, r)), "rect %v", r)
	}
}

func TestAssignNeverLoses(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100})
	g.CalculateCellCount(4)
	tbl := NewUniformTable(g)

	got := tbl.Assign(nil, shape.Rect{X1: 500, Y1: 10, X2: 510, Y2: 20})
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].X2)
	assert.LessOrEqual(t, got[0].Y1, 15.0)
}

func TestOwnsSingleOwner(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 0, Y1: 0, X2: 90, Y2: 60})
	g.CalculateCellCount(9)
	tbl := NewUniformTable(g)

	faker := gofakeit.New(0)
	points := [][2]float64{{0, 0}, {90, 60}, {30, 20}, {90, 0}, {-5, 70}, {45, 60}}
	for i := 0; i < 300; i++ {
		points = append(points, [2]float64{faker.Float64Range(0, 90), faker.Float64Range(0, 60)})
	}
	for _, p := range points {
		owners := 0
		for _, c := range tbl.Cells() {
			if tbl.Owns(c.ID, p[0], p[1]) {
				owners++
			}
		}
		assert.Equal(t, 1, owners, "point %v", p)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	g := NewGridInfo(shape.Rect{X1: 1.5, Y1: -2, X2: 7.25, Y2: 3})
	g.CalculateCellCount(6)
	cells := g.AllCells()

	got, err := DecodeCells(EncodeCells(cells))
	require.NoError(t, err)
	assert.Equal(t, cells, got)

	_, err = DecodeCells([]byte("1,0,0,1,1\n1,1,1,2,2\n"))
	assert.Error(t, err)
	_, err = DecodeCells([]byte("1,0,0,1\n"))
	assert.Error(t, err)
}

func ids(cells []*shape.CellInfo) []int64 {
	out := make([]int64, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.ID)
	}
	return out
}
