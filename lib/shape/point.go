package shape

import "math"

type Point struct {
	X, Y float64
}

func NewPoint(x, y float64) *Point {
	return &Point{X: x, Y: y}
}

func (p *Point) MBR() Rect {
	return Rect{X1: p.X, Y1: p.Y, X2: p.X, Y2: p.Y}
}

func (p *Point) Intersects(other Shape) bool {
	return other.MBR().ContainsPoint(p.X, p.Y)
}

func (p *Point) DistanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p *Point) Clone() Shape {
	c := *p
	return &c
}

func (p *Point) Kind() Kind { return KindPoint }

func (p *Point) AppendText(dst []byte) []byte {
	dst = appendFloat(dst, p.X)
	dst = append(dst, ',')
	return appendFloat(dst, p.Y)
}

func (p *Point) ParseText(line []byte) error {
	var x, y float64
	if err := parseFloats(line, &x, &y); err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}
