package shape

import (
	"strconv"
)

// CellInfo identifies one partition: a stable id plus its rectangle.
type CellInfo struct {
	ID int64
	Rect
}

func NewCellInfo(id int64, x1, y1, x2, y2 float64) *CellInfo {
	return &CellInfo{ID: id, Rect: *NewRect(x1, y1, x2, y2)}
}

func (c *CellInfo) MBR() Rect { return c.Rect }

func (c *CellInfo) Intersects(other Shape) bool {
	return c.Rect.Overlaps(other.MBR())
}

func (c *CellInfo) DistanceTo(p Point) float64 {
	return c.Rect.MinDist(p)
}

func (c *CellInfo) Clone() Shape {
	cc := *c
	return &cc
}

func (c *CellInfo) Kind() Kind { return KindCell }

func (c *CellInfo) AppendText(dst []byte) []byte {
	dst = strconv.AppendInt(dst, c.ID, 10)
	dst = append(dst, ',')
	return c.Rect.AppendText(dst)
}

func (c *CellInfo) ParseText(line []byte) error {
	id, rest, err := cutID(line)
	if err != nil {
		return err
	}
	var r Rect
	if err := r.ParseText(rest); err != nil {
		return err
	}
	c.ID, c.Rect = id, r
	return nil
}
