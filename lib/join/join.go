// Package join implements the grid partitioned spatial join: records of two
// inputs are replicated to every cell they overlap (Map), and each cell joins
// its two lists with a plane sweep (Reduce).
package join

import (
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

var ErrBadSource = errors.New("record source must be 0 or 1")

// JoinGrid sizes a uniform grid over mbr for two inputs of totalBytes: the
// size grows by the replication overhead, then one cell per block.
func JoinGrid(mbr shape.Rect, totalBytes int64, overhead float64, blockSize int64) *grid.GridInfo {
	total := totalBytes + int64(float64(totalBytes)*overhead)
	g := grid.NewGridInfo(mbr)
	g.CalculateCellDimensions(total, blockSize)
	return g
}

// Partitioner is the map side. One per task; not safe for concurrent use.
type Partitioner struct {
	cells *grid.CellTable
	buf   []*shape.CellInfo
}

func NewPartitioner(cells *grid.CellTable) *Partitioner {
	return &Partitioner{cells: cells}
}

// Map emits rec once for every cell it overlaps, whatever its source.
func (p *Partitioner) Map(rec *shape.TaggedShape, emit func(cellID int64, rec *shape.TaggedShape) error) error {
	p.buf = p.cells.Assign(p.buf[:0], rec.MBR())
	for _, c := range p.buf {
		if err := emit(c.ID, rec); err != nil {
			return err
		}
	}
	return nil
}

// Pair is one join result, found in cell CellID. First comes from source 0.
type Pair struct {
	CellID int64
	First  *shape.TaggedShape
	Second *shape.TaggedShape
}

// AppendText writes "cell<TAB>first<TAB>second".
func (p Pair) AppendText(dst []byte) []byte {
	dst = strconv.AppendInt(dst, p.CellID, 10)
	dst = append(dst, '\t')
	dst = p.First.AppendText(dst)
	dst = append(dst, '\t')
	return p.Second.AppendText(dst)
}

// Key identifies the pair independent of the cell it was found in.
func (p Pair) Key() [2]int64 {
	return [2]int64{p.First.ID, p.Second.ID}
}

type Joiner struct {
	cells *grid.CellTable
	// report a pair only in the cell owning its reference point
	dedup   bool
	metrics *metrics.Metrics
}

func NewJoiner(cells *grid.CellTable, dedup bool, m *metrics.Metrics) *Joiner {
	return &Joiner{cells: cells, dedup: dedup, metrics: m}
}

// Reduce joins the records delivered to one cell and returns how many pairs
// it emitted.
func (j *Joiner) Reduce(cellID int64, recs []*shape.TaggedShape, emit func(Pair) error) (int, error) {
	var r, s []*shape.TaggedShape
	for _, rec := range recs {
		switch rec.Source {
		case 0:
			r = append(r, rec)
		case 1:
			s = append(s, rec)
		default:
			return 0, errors.Wrapf(ErrBadSource, "cell %d record %d has source %d", cellID, rec.ID, rec.Source)
		}
	}

	candidates, emitted := 0, 0
	err := PlaneSweep(r, s, func(a, b *shape.TaggedShape) error {
		candidates++
		if !a.Intersects(b) {
			return nil
		}
		if j.dedup {
			x, y := grid.ReferencePoint(a.MBR(), b.MBR())
			if !j.cells.Owns(cellID, x, y) {
				return nil
			}
		}
		emitted++
		return emit(Pair{CellID: cellID, First: a, Second: b})
	})
	j.metrics.JoinCandidates(candidates)
	j.metrics.JoinPairs(emitted)
	return emitted, err
}

// PlaneSweep calls fn(a, b) for every a in r and b in s whose MBRs overlap
// (closed boundaries). Both slices are sorted in place by MBR X1.
func PlaneSweep[T shape.Shape](r, s []T, fn func(a, b T) error) error {
	byX1 := func(v []T) {
		sort.SliceStable(v, func(i, j int) bool { return v[i].MBR().X1 < v[j].MBR().X1 })
	}
	byX1(r)
	byX1(s)

	i, j := 0, 0
	for i < len(r) && j < len(s) {
		ri, sj := r[i].MBR(), s[j].MBR()
		if ri.X1 < sj.X1 {
			for k := j; k < len(s); k++ {
				sk := s[k].MBR()
				if sk.X1 > ri.X2 {
					break
				}
				if ri.Y1 <= sk.Y2 && sk.Y1 <= ri.Y2 {
					if err := fn(r[i], s[k]); err != nil {
						return err
					}
				}
			}
			i++
		} else {
			for k := i; k < len(r); k++ {
				rk := r[k].MBR()
				if rk.X1 > sj.X2 {
					break
				}
				if rk.Y1 <= sj.Y2 && sj.Y1 <= rk.Y2 {
					if err := fn(r[k], s[j]); err != nil {
						return err
					}
				}
			}
			j++
		}
	}
	return nil
}
