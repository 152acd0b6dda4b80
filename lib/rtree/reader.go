package rtree

import (
	"container/heap"
	"io"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

// Tree is a read-only view of one r-tree file. The node region is held in
// memory, records are read on demand.
type Tree struct {
	ra        io.ReaderAt
	nodes     *disk.Page
	degree    int
	height    int
	nodeCount int
	count     int
	dataLen   int64
	dataStart int64
}

// Hit is one record found by a query.
type Hit struct {
	MBR    shape.Rect
	Record []byte
	// Offset of the record inside the data section.
	Offset uint64
	Dist   float64
	length uint32
}

// IsRTree reports whether b starts with the r-tree signature.
func IsRTree(b []byte) bool {
	return len(b) >= lib.RTREE_SIGNATURE_SIZE && string(b[:lib.RTREE_SIGNATURE_SIZE]) == lib.RTREE_SIGNATURE
}

func Open(ra io.ReaderAt, size int64) (*Tree, error) {
	head := make([]byte, lib.RTREE_SIGNATURE_SIZE+HEADER_SIZE)
	if size < int64(len(head)) {
		return nil, errors.Wrapf(ErrBadSignature, "file too short: %d bytes", size)
	}
	if _, err := ra.ReadAt(head, 0); err != nil {
		return nil, errors.Wrap(err, "read r-tree header")
	}
	if !IsRTree(head) {
		return nil, ErrBadSignature
	}
	h := disk.NewPageFromByteSlice(head[lib.RTREE_SIGNATURE_SIZE:])
	t := &Tree{
		ra:        ra,
		degree:    int(h.GetUint32(0)),
		height:    int(h.GetUint32(4)),
		nodeCount: int(h.GetUint32(8)),
		count:     int(h.GetUint32(12)),
		dataLen:   int64(h.GetUint64(16)),
	}
	if t.degree < 2 || t.height < 1 {
		return nil, errors.Wrapf(ErrCorrupt, "degree %d height %d", t.degree, t.height)
	}
	overhead := StorageOverhead(t.count, t.degree)
	t.dataStart = lib.RTREE_SIGNATURE_SIZE + overhead
	if t.dataStart+t.dataLen > size {
		return nil, errors.Wrapf(ErrCorrupt, "data section ends at %d past file size %d", t.dataStart+t.dataLen, size)
	}
	body := make([]byte, overhead)
	if _, err := ra.ReadAt(body, lib.RTREE_SIGNATURE_SIZE); err != nil {
		return nil, errors.Wrap(err, "read r-tree nodes")
	}
	t.nodes = disk.NewPageFromByteSlice(body)
	return t, nil
}

func (t *Tree) Len() int    { return t.count }
func (t *Tree) Height() int { return t.height }
func (t *Tree) Degree() int { return t.degree }

type entry struct {
	mbr    shape.Rect
	ref    uint64
	length uint32
}

func (t *Tree) node(off int) (bool, int, error) {
	if off < HEADER_SIZE || off+NODE_HEADER_SIZE > t.nodes.Size() {
		return false, 0, errors.Wrapf(ErrCorrupt, "node offset %d", off)
	}
	leaf := t.nodes.GetBool(off)
	count := int(t.nodes.GetUint16(off + 1))
	if off+nodeSize(count) > t.nodes.Size() {
		return false, 0, errors.Wrapf(ErrCorrupt, "node at %d with %d entries", off, count)
	}
	return leaf, count, nil
}

func (t *Tree) entry(off, i int) entry {
	e := off + NODE_HEADER_SIZE + i*ENTRY_SIZE
	return entry{
		mbr: shape.Rect{
			X1: t.nodes.GetFloat64(e), Y1: t.nodes.GetFloat64(e + 8),
			X2: t.nodes.GetFloat64(e + 16), Y2: t.nodes.GetFloat64(e + 24),
		},
		ref:    t.nodes.GetUint64(e + 32),
		length: t.nodes.GetUint32(e + 40),
	}
}

func (t *Tree) record(e entry) ([]byte, error) {
	if int64(e.ref)+int64(e.length) > t.dataLen {
		return nil, errors.Wrapf(ErrCorrupt, "record at %d+%d past data section", e.ref, e.length)
	}
	b := make([]byte, e.length)
	if _, err := t.ra.ReadAt(b, t.dataStart+int64(e.ref)); err != nil {
		return nil, errors.Wrapf(err, "read record at %d", e.ref)
	}
	return b, nil
}

// Search calls fn for every record whose MBR intersects bound until fn
// returns false.
func (t *Tree) Search(bound shape.Rect, fn func(Hit) bool) error {
	_, err := t.search(HEADER_SIZE, bound, fn)
	return err
}

func (t *Tree) search(off int, bound shape.Rect, fn func(Hit) bool) (bool, error) {
	leaf, count, err := t.node(off)
	if err != nil {
		return false, err
	}
	for i := 0; i < count; i++ {
		e := t.entry(off, i)
		if !e.mbr.Overlaps(bound) {
			continue
		}
		if !leaf {
			// S1. subtree yang overlap dengan bound
			child, err := childOffset(off, e)
			if err != nil {
				return false, err
			}
			more, err := t.search(child, bound, fn)
			if err != nil || !more {
				return more, err
			}
			continue
		}
		// S2. leaf entry yang overlap adalah hasil
		rec, err := t.record(e)
		if err != nil {
			return false, err
		}
		if !fn(Hit{MBR: e.mbr, Record: rec, Offset: e.ref, length: e.length}) {
			return false, nil
		}
	}
	return true, nil
}

// All visits every record in tree order.
func (t *Tree) All(fn func(Hit) bool) error {
	inf := math.Inf(1)
	return t.Search(shape.Rect{X1: -inf, Y1: -inf, X2: inf, Y2: inf}, fn)
}

// NearestNeighbors returns up to k records closest to p by MBR distance,
// closest first.
func (t *Tree) NearestNeighbors(k int, p shape.Point) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	nearest := &priorityQueue{}
	if err := t.nearestNeighbors(k, p, HEADER_SIZE, nearest); err != nil {
		return nil, err
	}
	hits := make([]Hit, nearest.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(nearest).(Hit)
	}
	for i := range hits {
		rec, err := t.record(entry{ref: hits[i].Offset, length: hits[i].length})
		if err != nil {
			return nil, err
		}
		hits[i].Record = rec
	}
	return hits, nil
}

type activeBranch struct {
	entry
	dist float64
}

func (t *Tree) nearestNeighbors(k int, q shape.Point, off int, nearest *priorityQueue) error {
	leaf, count, err := t.node(off)
	if err != nil {
		return err
	}
	if leaf {
		for i := 0; i < count; i++ {
			e := t.entry(off, i)
			dist := e.mbr.MinDist(q)
			if nearest.Len() < k {
				heap.Push(nearest, Hit{MBR: e.mbr, Offset: e.ref, Dist: dist, length: e.length})
			} else if dist < (*nearest)[0].Dist {
				heap.Pop(nearest)
				heap.Push(nearest, Hit{MBR: e.mbr, Offset: e.ref, Dist: dist, length: e.length})
			}
		}
		return nil
	}

	branches := make([]activeBranch, count)
	for i := range branches {
		e := t.entry(off, i)
		branches[i] = activeBranch{entry: e, dist: e.mbr.MinDist(q)}
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].dist < branches[j].dist })
	for _, b := range branches {
		// activeBranch sudah sorted, sisanya lebih jauh
		if nearest.Len() == k && b.dist >= (*nearest)[0].Dist {
			break
		}
		child, err := childOffset(off, b.entry)
		if err != nil {
			return err
		}
		if err := t.nearestNeighbors(k, q, child, nearest); err != nil {
			return err
		}
	}
	return nil
}

// childOffset. node ditulis level order, child selalu setelah parent.
func childOffset(off int, e entry) (int, error) {
	if e.ref <= uint64(off) {
		return 0, errors.Wrapf(ErrCorrupt, "child at %d does not follow node %d", e.ref, off)
	}
	return int(e.ref), nil
}

// priorityQueue. max-heap by Dist, root is the current k-th nearest.
type priorityQueue []Hit

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].Dist > pq[j].Dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(Hit)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
