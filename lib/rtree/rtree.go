// Package rtree writes and reads the per-cell R-tree files.
//
// File layout: an 8 byte signature, then the body. The body starts with a 24
// byte header (degree u32, height u32, node count u32, element count u32,
// data length u64), followed by the nodes in level order from the root, then
// the data section holding every record followed by a newline. A node is a
// leaf flag byte, an u16 entry count and count entries of 44 bytes each
// (x1,y1,x2,y2 float64, ref u64, length u32). Internal entries point to the
// body offset of a child node; leaf entries point to a record inside the data
// section. Every level is packed left to right and only the last node of a
// level may be partial, so the node region size depends only on the element
// count and the degree.
package rtree

import (
	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
)

const (
	HEADER_SIZE      = 24
	NODE_HEADER_SIZE = 3
	ENTRY_SIZE       = 44
	MAX_DEGREE       = 1<<16 - 1
)

var (
	ErrBadSignature = errors.New("not an r-tree file")
	ErrCorrupt      = errors.New("corrupt r-tree file")
)

// nodesPerLevel returns node counts bottom-up. An empty tree is a single
// empty root leaf.
func nodesPerLevel(n, degree int) []int {
	leaves := int(lib.CeilDiv(int64(n), int64(degree)))
	if leaves < 1 {
		leaves = 1
	}
	levels := []int{leaves}
	for cnt := leaves; cnt > 1; {
		cnt = int(lib.CeilDiv(int64(cnt), int64(degree)))
		levels = append(levels, cnt)
	}
	return levels
}

// StorageOverhead is the size of header plus node region of a tree over n
// records. It is exact: the data section starts right after it.
func StorageOverhead(n, degree int) int64 {
	total := 0
	for _, c := range nodesPerLevel(n, degree) {
		total += c
	}
	entries := int64(n + total - 1)
	return HEADER_SIZE + int64(total)*NODE_HEADER_SIZE + entries*ENTRY_SIZE
}

// FileSize of an r-tree file holding n records whose lengths (without the
// newline) sum to recordBytes.
func FileSize(n int, recordBytes int64, degree int) int64 {
	return lib.RTREE_SIGNATURE_SIZE + StorageOverhead(n, degree) + recordBytes + int64(n)
}

func fullNodeSize(degree int) int {
	return NODE_HEADER_SIZE + degree*ENTRY_SIZE
}

func nodeSize(count int) int {
	return NODE_HEADER_SIZE + count*ENTRY_SIZE
}
