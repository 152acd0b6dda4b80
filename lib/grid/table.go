package grid

import (
	"bufio"
	"bytes"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

// CellTable is a read-only lookup from geometry to cells, built once per task
// from a decoded descriptor. Safe for concurrent use.
type CellTable struct {
	cells  []shape.CellInfo
	byID   map[int64]int
	extent shape.Rect
	// non-nil when cells are exactly uniform.AllCells()
	uniform *GridInfo
}

func NewCellTable(cells []shape.CellInfo) *CellTable {
	t := &CellTable{
		cells:  make([]shape.CellInfo, len(cells)),
		byID:   make(map[int64]int, len(cells)),
		extent: shape.EmptyRect(),
	}
	copy(t.cells, cells)
	sort.SliceStable(t.cells, func(i, j int) bool { return t.cells[i].ID < t.cells[j].ID })
	for i := range t.cells {
		t.byID[t.cells[i].ID] = i
		t.extent = t.extent.Expand(t.cells[i].Rect)
	}
	return t
}

// NewUniformTable builds a table over g.AllCells() that resolves lookups by
// column/row arithmetic instead of scanning every cell.
func NewUniformTable(g *GridInfo) *CellTable {
	t := NewCellTable(g.AllCells())
	gg := *g
	t.uniform = &gg
	return t
}

func (t *CellTable) Len() int { return len(t.cells) }

// Cells returns the cells sorted by id. The slice must not be modified.
func (t *CellTable) Cells() []shape.CellInfo { return t.cells }

func (t *CellTable) Extent() shape.Rect { return t.extent }

func (t *CellTable) Get(id int64) (shape.CellInfo, bool) {
	i, ok := t.byID[id]
	if !ok {
		return shape.CellInfo{}, false
	}
	return t.cells[i], true
}

// Overlapping appends every cell whose rectangle intersects r (closed
// boundaries) to dst.
func (t *CellTable) Overlapping(dst []*shape.CellInfo, r shape.Rect) []*shape.CellInfo {
	if g := t.uniform; g != nil {
		c1, c2 := g.colRange(r.X1, r.X2)
		r1, r2 := g.rowRange(r.Y1, r.Y2)
		for row := r1; row <= r2; row++ {
			for col := c1; col <= c2; col++ {
				c := &t.cells[t.byID[g.CellID(col, row)]]
				if c.Overlaps(r) {
					dst = append(dst, c)
				}
			}
		}
		return dst
	}
	for i := range t.cells {
		if t.cells[i].Overlaps(r) {
			dst = append(dst, &t.cells[i])
		}
	}
	return dst
}

// Assign is Overlapping, except that a rectangle outside every cell goes to
// the nearest cell so that no record is lost.
func (t *CellTable) Assign(dst []*shape.CellInfo, r shape.Rect) []*shape.CellInfo {
	n := len(dst)
	dst = t.Overlapping(dst, r)
	if len(dst) > n || len(t.cells) == 0 {
		return dst
	}
	center := r.Center()
	best, bestDist := 0, t.cells[0].MinDist(center)
	for i := 1; i < len(t.cells); i++ {
		if d := t.cells[i].MinDist(center); d < bestDist {
			best, bestDist = i, d
		}
	}
	return append(dst, &t.cells[best])
}

// Owns reports whether cell id owns point (x,y). Ownership is half-open
// ([X1,X2) x [Y1,Y2)) except on the max edges of the table extent, and points
// outside the extent are clamped onto it first. For cells that tile the
// extent every point has exactly one owner.
func (t *CellTable) Owns(id int64, x, y float64) bool {
	c, ok := t.Get(id)
	if !ok {
		return false
	}
	x = clampF(x, t.extent.X1, t.extent.X2)
	y = clampF(y, t.extent.Y1, t.extent.Y2)
	inX := x >= c.X1 && (x < c.X2 || (x == c.X2 && c.X2 >= t.extent.X2))
	inY := y >= c.Y1 && (y < c.Y2 || (y == c.Y2 && c.Y2 >= t.extent.Y2))
	return inX && inY
}

// ReferencePoint of a pair of MBRs: the lower-left corner of their
// intersection.
func ReferencePoint(a, b shape.Rect) (float64, float64) {
	x := a.X1
	if b.X1 > x {
		x = b.X1
	}
	y := a.Y1
	if b.Y1 > y {
		y = b.Y1
	}
	return x, y
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeCells writes the partitioning descriptor: one "id,x1,y1,x2,y2" line
// per cell.
func EncodeCells(cells []shape.CellInfo) []byte {
	var buf []byte
	for i := range cells {
		buf = cells[i].AppendText(buf)
		buf = append(buf, '\n')
	}
	return buf
}

func DecodeCells(b []byte) ([]shape.CellInfo, error) {
	var cells []shape.CellInfo
	seen := make(map[int64]struct{})
	sc := bufio.NewScanner(bytes.NewReader(b))
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var c shape.CellInfo
		if err := c.ParseText(text); err != nil {
			return nil, errors.Wrapf(err, "descriptor line %d", line)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, errors.Newf("descriptor line %d: duplicate cell id %d", line, c.ID)
		}
		seen[c.ID] = struct{}{}
		cells = append(cells, c)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read descriptor")
	}
	return cells, nil
}
