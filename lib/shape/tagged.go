package shape

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// TaggedShape carries provenance through partitioning and joining without
// touching the wrapped geometry. ID is a record id, Source the index of the
// input the record came from.
type TaggedShape struct {
	ID     int64
	Source int
	Shape  Shape
}

func NewTaggedShape(id int64, source int, s Shape) *TaggedShape {
	return &TaggedShape{ID: id, Source: source, Shape: s}
}

func (t *TaggedShape) MBR() Rect { return t.Shape.MBR() }

func (t *TaggedShape) Intersects(other Shape) bool {
	if o, ok := other.(*TaggedShape); ok {
		other = o.Shape
	}
	return t.Shape.Intersects(other)
}

func (t *TaggedShape) DistanceTo(p Point) float64 {
	return t.Shape.DistanceTo(p)
}

func (t *TaggedShape) Clone() Shape {
	c := *t
	if t.Shape != nil {
		c.Shape = t.Shape.Clone()
	}
	return &c
}

func (t *TaggedShape) Kind() Kind { return KindTagged }

// AppendText writes "id,<inner>". Source is not part of the text form; it is
// known from the input the line is read from.
func (t *TaggedShape) AppendText(dst []byte) []byte {
	dst = strconv.AppendInt(dst, t.ID, 10)
	dst = append(dst, ',')
	return t.Shape.AppendText(dst)
}

// ParseText needs t.Shape set to a zero value of the inner kind.
func (t *TaggedShape) ParseText(line []byte) error {
	if t.Shape == nil {
		return errors.Wrap(ErrMalformed, "tagged shape without inner kind")
	}
	id, rest, err := cutID(line)
	if err != nil {
		return err
	}
	if err := t.Shape.ParseText(rest); err != nil {
		return err
	}
	t.ID = id
	return nil
}
