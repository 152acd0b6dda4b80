// Package grid describes how the data space is cut into cells.
package grid

import (
	"math"

	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

// GridInfo. extent (X0,Y0,Width,Height) plus uniform column/row counts.
type GridInfo struct {
	X0, Y0        float64
	Width, Height float64
	Columns, Rows int
	CellWidth     float64
	CellHeight    float64
}

func NewGridInfo(extent shape.Rect) *GridInfo {
	g := &GridInfo{
		X0: extent.X1, Y0: extent.Y1,
		Width: extent.Width(), Height: extent.Height(),
	}
	g.setDimensions(1, 1)
	return g
}

func (g *GridInfo) Extent() shape.Rect {
	return shape.Rect{X1: g.X0, Y1: g.Y0, X2: g.X0 + g.Width, Y2: g.Y0 + g.Height}
}

func (g *GridInfo) setDimensions(cols, rows int) {
	g.Columns, g.Rows = cols, rows
	g.CellWidth = g.Width / float64(cols)
	g.CellHeight = g.Height / float64(rows)
}

// CalculateCellDimensions sizes the grid so that each cell holds about one
// block of totalBytes.
func (g *GridInfo) CalculateCellDimensions(totalBytes, blockSize int64) {
	n := lib.CeilDiv(totalBytes, blockSize)
	if n < 1 {
		n = 1
	}
	g.CalculateCellCount(int(n))
}

// CalculateCellCount grows columns or rows, whichever splits the wider cell
// side, until there are at least n cells. A point extent cannot be split and
// keeps one cell.
func (g *GridInfo) CalculateCellCount(n int) {
	cols, rows := 1, 1
	g.setDimensions(cols, rows)
	if g.Width == 0 && g.Height == 0 {
		return
	}
	for cols*rows < n {
		if g.CellWidth >= g.CellHeight {
			cols++
		} else {
			rows++
		}
		g.setDimensions(cols, rows)
	}
}

func (g *GridInfo) NumCells() int {
	return g.Columns * g.Rows
}

// CellID of column col and row row. Ids start at 1 and run row-major.
func (g *GridInfo) CellID(col, row int) int64 {
	return int64(row*g.Columns+col) + 1
}

// AllCells returns the uniform cells. The last column and row end exactly on
// the extent edge so that the cells tile the extent.
func (g *GridInfo) AllCells() []shape.CellInfo {
	cells := make([]shape.CellInfo, 0, g.NumCells())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Columns; col++ {
			cells = append(cells, g.cell(col, row))
		}
	}
	return cells
}

func (g *GridInfo) cell(col, row int) shape.CellInfo {
	x1 := g.X0 + float64(col)*g.CellWidth
	y1 := g.Y0 + float64(row)*g.CellHeight
	x2 := g.X0 + float64(col+1)*g.CellWidth
	y2 := g.Y0 + float64(row+1)*g.CellHeight
	if col == g.Columns-1 {
		x2 = g.X0 + g.Width
	}
	if row == g.Rows-1 {
		y2 = g.Y0 + g.Height
	}
	return shape.CellInfo{ID: g.CellID(col, row), Rect: shape.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

// colRange returns the columns whose closed x interval may touch [x1,x2].
// One column of slack on each side; callers refine with Overlaps.
func (g *GridInfo) colRange(x1, x2 float64) (int, int) {
	return span(x1-g.X0, x2-g.X0, g.CellWidth, g.Columns)
}

func (g *GridInfo) rowRange(y1, y2 float64) (int, int) {
	return span(y1-g.Y0, y2-g.Y0, g.CellHeight, g.Rows)
}

func span(lo, hi, size float64, n int) (int, int) {
	if size <= 0 {
		return 0, n - 1
	}
	a := int(math.Floor(lo/size)) - 1
	b := int(math.Floor(hi/size)) + 1
	return clamp(a, 0, n-1), clamp(b, 0, n-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
