package join

import (
	"sort"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runJoin does map, group by cell and reduce in memory.
func runJoin(t *testing.T, cells *grid.CellTable, dedup bool, inputs ...[]*shape.TaggedShape) []Pair {
	groups := map[int64][]*shape.TaggedShape{}
	p := NewPartitioner(cells)
	for _, in := range inputs {
		for _, rec := range in {
			require.NoError(t, p.Map(rec, func(id int64, rec *shape.TaggedShape) error {
				groups[id] = append(groups[id], rec)
				return nil
			}))
		}
	}
	j := NewJoiner(cells, dedup, metrics.New())
	var pairs []Pair
	for id, recs := range groups {
		_, err := j.Reduce(id, recs, func(p Pair) error {
			pairs = append(pairs, p)
			return nil
		})
		require.NoError(t, err)
	}
	return pairs
}

func tagged(source int, rects ...*shape.Rect) []*shape.TaggedShape {
	out := make([]*shape.TaggedShape, len(rects))
	for i, r := range rects {
		out[i] = shape.NewTaggedShape(int64(i), source, r)
	}
	return out
}

func TestJoinScenario(t *testing.T) {
	a := tagged(0, shape.NewRect(0, 0, 10, 10))
	b := tagged(1, shape.NewRect(5, 5, 15, 15), shape.NewRect(100, 100, 110, 110))
	cells := grid.NewCellTable([]shape.CellInfo{
		*shape.NewCellInfo(1, 0, 0, 50, 110),
		*shape.NewCellInfo(2, 50, 0, 110, 110),
	})

	pairs := runJoin(t, cells, false, a, b)
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(1), pairs[0].CellID)
	assert.Equal(t, a[0], pairs[0].First)
	assert.Equal(t, b[0], pairs[0].Second)
	assert.Equal(t, "1\t0,0,0,10,10\t0,5,5,15,15", string(pairs[0].AppendText(nil)))
}

func TestJoinGridSizing(t *testing.T) {
	g := JoinGrid(shape.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, 1000, 0.002, 100)
	assert.GreaterOrEqual(t, g.NumCells(), 11, "1000 bytes plus overhead needs more than 10 blocks")
	g = JoinGrid(shape.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, 0, 0.002, 100)
	assert.Equal(t, 1, g.NumCells())
}

func randomTagged(faker *gofakeit.Faker, source, n int, maxSide float64) []*shape.TaggedShape {
	out := make([]*shape.TaggedShape, n)
	for i := range out {
		x, y := faker.Float64Range(0, 1000), faker.Float64Range(0, 1000)
		out[i] = shape.NewTaggedShape(int64(i), source,
			shape.NewRect(x, y, x+faker.Float64Range(0, maxSide), y+faker.Float64Range(0, maxSide)))
	}
	return out
}

func bruteForce(r, s []*shape.TaggedShape) map[[2]int64]bool {
	want := map[[2]int64]bool{}
	for _, a := range r {
		for _, b := range s {
			if a.Intersects(b) {
				want[[2]int64{a.ID, b.ID}] = true
			}
		}
	}
	return want
}

func TestJoinPointExtentDedup(t *testing.T) {
	g := JoinGrid(shape.Rect{X1: 5, Y1: 5, X2: 5, Y2: 5}, 600*8, 0.002, 4096)
	require.Equal(t, 1, g.NumCells())

	r := make([]*shape.Rect, 600)
	for i := range r {
		r[i] = shape.NewRect(5, 5, 5, 5)
	}
	cells := grid.NewUniformTable(g)
	pairs := runJoin(t, cells, true, tagged(0, r...), tagged(1, shape.NewRect(5, 5, 5, 5)))
	assert.Len(t, pairs, 600)
	seen := make(map[[2]int64]bool)
	for _, p := range pairs {
		assert.False(t, seen[p.Key()], "pair %v reported twice", p.Key())
		seen[p.Key()] = true
	}
}

func TestJoinMatchesBruteForce(t *testing.T) {
	faker := gofakeit.New(0)
	r := randomTagged(faker, 0, 600, 80)
	s := randomTagged(faker, 1, 700, 80)
	want := bruteForce(r, s)
	require.NotEmpty(t, want)

	g := grid.NewGridInfo(shape.Rect{X1: 0, Y1: 0, X2: 1080, Y2: 1080})
	g.CalculateCellCount(16)
	cells := grid.NewUniformTable(g)

	got := map[[2]int64]int{}
	for _, p := range runJoin(t, cells, false, r, s) {
		got[p.Key()]++
	}
	assert.Len(t, got, len(want))
	dups := 0
	for k, n := range got {
		assert.True(t, want[k], "pair %v is not an intersection", k)
		if n > 1 {
			dups++
		}
	}
	assert.Positive(t, dups, "boundary replication reports some pairs in several cells")

	exact := map[[2]int64]int{}
	for _, p := range runJoin(t, cells, true, r, s) {
		exact[p.Key()]++
	}
	assert.Len(t, exact, len(want))
	for k, n := range exact {
		assert.Equal(t, 1, n, "pair %v", k)
	}
}

func TestJoinPackedCellsDedup(t *testing.T) {
	faker := gofakeit.New(7)
	r := randomTagged(faker, 0, 300, 120)
	s := randomTagged(faker, 1, 300, 120)
	cells := grid.NewCellTable([]shape.CellInfo{
		*shape.NewCellInfo(1, 0, 0, 333.3, 1120),
		*shape.NewCellInfo(2, 333.3, 0, 1120, 500),
		*shape.NewCellInfo(3, 333.3, 500, 700, 1120),
		*shape.NewCellInfo(4, 700, 500, 1120, 1120),
	})
	exact := map[[2]int64]int{}
	for _, p := range runJoin(t, cells, true, r, s) {
		exact[p.Key()]++
	}
	want := bruteForce(r, s)
	assert.Len(t, exact, len(want))
	for k := range want {
		assert.Equal(t, 1, exact[k], "pair %v", k)
	}
}

func TestPlaneSweepMatchesNestedLoop(t *testing.T) {
	faker := gofakeit.New(3)
	r := randomTagged(faker, 0, 200, 50)
	s := randomTagged(faker, 1, 200, 50)
	// shared edges and equal X1 values
	r = append(r, shape.NewTaggedShape(1000, 0, shape.NewRect(10, 10, 20, 20)))
	s = append(s, shape.NewTaggedShape(1000, 1, shape.NewRect(20, 20, 30, 30)))
	s = append(s, shape.NewTaggedShape(1001, 1, shape.NewRect(10, 0, 11, 10)))

	var got [][2]int64
	require.NoError(t, PlaneSweep(r, s, func(a, b *shape.TaggedShape) error {
		got = append(got, [2]int64{a.ID, b.ID})
		return nil
	}))
	var want [][2]int64
	for k := range bruteForce(r, s) {
		want = append(want, k)
	}
	less := func(v [][2]int64) func(i, j int) bool {
		return func(i, j int) bool {
			if v[i][0] != v[j][0] {
				return v[i][0] < v[j][0]
			}
			return v[i][1] < v[j][1]
		}
	}
	sort.Slice(got, less(got))
	sort.Slice(want, less(want))
	assert.Equal(t, want, got)

	stop := errors.New("stop")
	err := PlaneSweep(r, s, func(a, b *shape.TaggedShape) error { return stop })
	assert.True(t, errors.Is(err, stop))
}

func TestReduceRejectsBadSource(t *testing.T) {
	cells := grid.NewCellTable([]shape.CellInfo{*shape.NewCellInfo(1, 0, 0, 1, 1)})
	j := NewJoiner(cells, false, nil)
	_, err := j.Reduce(1, []*shape.TaggedShape{shape.NewTaggedShape(1, 2, shape.NewPoint(0, 0))}, func(Pair) error { return nil })
	assert.True(t, errors.Is(err, ErrBadSource))
}
