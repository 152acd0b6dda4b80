package shape

import "math"

// Rect. axis-aligned rectangle, (X1,Y1) lower-left dan (X2,Y2) upper-right. batasnya closed.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// NewRect normalizes the corners so that X1 <= X2 and Y1 <= Y2.
func NewRect(x1, y1, x2, y2 float64) *Rect {
	return &Rect{
		X1: math.Min(x1, x2), Y1: math.Min(y1, y2),
		X2: math.Max(x1, x2), Y2: math.Max(y1, y2),
	}
}

// EmptyRect is the identity of Expand.
func EmptyRect() Rect {
	return Rect{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
}

func (r Rect) IsEmpty() bool {
	return r.X1 > r.X2 || r.Y1 > r.Y2
}

func (r Rect) Width() float64  { return r.X2 - r.X1 }
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

func (r Rect) Expand(o Rect) Rect {
	return Rect{
		X1: math.Min(r.X1, o.X1), Y1: math.Min(r.Y1, o.Y1),
		X2: math.Max(r.X2, o.X2), Y2: math.Max(r.Y2, o.Y2),
	}
}

func (r Rect) Overlaps(o Rect) bool {
	return r.X1 <= o.X2 && o.X1 <= r.X2 && r.Y1 <= o.Y2 && o.Y1 <= r.Y2
}

// Intersection returns the common part of r and o. ok is false when they are disjoint.
func (r Rect) Intersection(o Rect) (Rect, bool) {
	if !r.Overlaps(o) {
		return Rect{}, false
	}
	return Rect{
		X1: math.Max(r.X1, o.X1), Y1: math.Max(r.Y1, o.Y1),
		X2: math.Min(r.X2, o.X2), Y2: math.Min(r.Y2, o.Y2),
	}, true
}

func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

func (r Rect) ContainsRect(o Rect) bool {
	return r.X1 <= o.X1 && o.X2 <= r.X2 && r.Y1 <= o.Y1 && o.Y2 <= r.Y2
}

// MinDist. jarak euclid terdekat dari p ke r (0 kalau p di dalam r).
func (r Rect) MinDist(p Point) float64 {
	dx, dy := 0.0, 0.0
	if p.X < r.X1 {
		dx = r.X1 - p.X
	} else if p.X > r.X2 {
		dx = p.X - r.X2
	}
	if p.Y < r.Y1 {
		dy = r.Y1 - p.Y
	} else if p.Y > r.Y2 {
		dy = p.Y - r.Y2
	}
	return math.Hypot(dx, dy)
}

func (r *Rect) MBR() Rect { return *r }

func (r *Rect) Intersects(other Shape) bool {
	return r.Overlaps(other.MBR())
}

func (r *Rect) DistanceTo(p Point) float64 {
	return r.MinDist(p)
}

func (r *Rect) Clone() Shape {
	c := *r
	return &c
}

func (r *Rect) Kind() Kind { return KindRect }

func (r *Rect) AppendText(dst []byte) []byte {
	dst = appendFloat(dst, r.X1)
	dst = append(dst, ',')
	dst = appendFloat(dst, r.Y1)
	dst = append(dst, ',')
	dst = appendFloat(dst, r.X2)
	dst = append(dst, ',')
	return appendFloat(dst, r.Y2)
}

func (r *Rect) ParseText(line []byte) error {
	var x1, y1, x2, y2 float64
	if err := parseFloats(line, &x1, &y1, &x2, &y2); err != nil {
		return err
	}
	*r = *NewRect(x1, y1, x2, y2)
	return nil
}
