// Package pack turns a sample of record centers into density balanced cells.
package pack

import (
	"sort"

	"github.com/lintang-b-s/sgrid/lib/shape"
)

// PackInRectangles cuts extent into cellCount rectangles that hold about the
// same number of sample points. The extent is bisected recursively across its
// longer side; each half gets a share of the cells proportional to its share
// of the points. The result tiles extent and ids run from 1 in output order.
func PackInRectangles(extent shape.Rect, samples []shape.Point, cellCount int) []shape.CellInfo {
	if cellCount < 1 {
		cellCount = 1
	}
	pts := make([]shape.Point, 0, len(samples))
	for _, p := range samples {
		if extent.ContainsPoint(p.X, p.Y) {
			pts = append(pts, p)
		}
	}
	cells := make([]shape.CellInfo, 0, cellCount)
	bisect(extent, pts, cellCount, &cells)
	for i := range cells {
		cells[i].ID = int64(i + 1)
	}
	return cells
}

func bisect(r shape.Rect, pts []shape.Point, n int, out *[]shape.CellInfo) {
	if n <= 1 {
		*out = append(*out, shape.CellInfo{Rect: r})
		return
	}
	left := n / 2
	byX := r.Width() >= r.Height()
	coord := func(p shape.Point) float64 {
		if byX {
			return p.X
		}
		return p.Y
	}
	lo, hi := r.Y1, r.Y2
	if byX {
		lo, hi = r.X1, r.X2
	}

	var cut float64
	k := len(pts) * left / n
	if len(pts) < 2 {
		// no density information, split by area
		cut = lo + (hi-lo)*float64(left)/float64(n)
		k = 0
		for _, p := range pts {
			if coord(p) < cut {
				k++
			}
		}
	} else {
		sort.SliceStable(pts, func(i, j int) bool { return coord(pts[i]) < coord(pts[j]) })
		if k < 1 {
			k = 1
		}
		if k > len(pts)-1 {
			k = len(pts) - 1
		}
		cut = (coord(pts[k-1]) + coord(pts[k])) / 2
	}
	if cut < lo {
		cut = lo
	}
	if cut > hi {
		cut = hi
	}

	a, b := r, r
	if byX {
		a.X2, b.X1 = cut, cut
	} else {
		a.Y2, b.Y1 = cut, cut
	}
	bisect(a, pts[:k], left, out)
	bisect(b, pts[k:], n-left, out)
}
