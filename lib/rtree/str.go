package rtree

import (
	"math"
	"sort"

	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

// strPack orders n items with Sort-Tile-Recursive and cuts the order into
// nodes of degree items. Slices are a whole number of nodes wide, so only the
// last node can be partial. Sorts are stable: equal keys keep input order.
func strPack(n, degree int, center func(i int) shape.Point) [][]int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if n == 0 {
		return [][]int{{}}
	}

	leafCount := lib.CeilDiv(int64(n), int64(degree))
	slices := int(math.Ceil(math.Sqrt(float64(leafCount))))
	sliceSize := slices * degree

	sort.SliceStable(order, func(a, b int) bool {
		return center(order[a]).X < center(order[b]).X
	})
	for lo := 0; lo < n; lo += sliceSize {
		hi := lo + sliceSize
		if hi > n {
			hi = n
		}
		part := order[lo:hi]
		sort.SliceStable(part, func(a, b int) bool {
			return center(part[a]).Y < center(part[b]).Y
		})
	}

	nodes := make([][]int, 0, leafCount)
	for lo := 0; lo < n; lo += degree {
		hi := lo + degree
		if hi > n {
			hi = n
		}
		nodes = append(nodes, order[lo:hi])
	}
	return nodes
}
