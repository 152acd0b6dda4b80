package rtree

import (
	"bytes"
	"io"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

// Builder bulk-loads one r-tree file from a raw cell buffer.
type Builder struct {
	Degree int
	// lib.BUILD_MODE_FAST keeps every record MBR in memory. lib.BUILD_MODE_SLOW
	// re-parses records while sorting and stages the leaf level on FS.
	Mode  string
	Parse func(line []byte) (shape.Shape, error)

	FS         disk.FileSystem
	StagingDir string
}

type record struct {
	start, length int
	dataOff       uint64
}

type level struct {
	nodes [][]int
	mbrs  []shape.Rect
}

// splitRecords returns the non-empty lines of raw. Empty lines (sentinels,
// padding) are not records.
func splitRecords(raw []byte) ([]record, uint64) {
	var recs []record
	var dataOff uint64
	for start := 0; start < len(raw); {
		end := bytes.IndexByte(raw[start:], lib.NEW_LINE)
		if end < 0 {
			end = len(raw)
		} else {
			end += start
		}
		if end > start {
			recs = append(recs, record{start: start, length: end - start, dataOff: dataOff})
			dataOff += uint64(end-start) + 1
		}
		start = end + 1
	}
	return recs, dataOff
}

// Write writes signature and tree body over the records in raw to w and
// returns the number of bytes written. Output is identical in both modes.
func (b *Builder) Write(w io.Writer, raw []byte) (int64, error) {
	if b.Degree < 2 || b.Degree > MAX_DEGREE {
		return 0, errors.Newf("r-tree degree must be in [2,%d], got %d", MAX_DEGREE, b.Degree)
	}
	recs, dataLen := splitRecords(raw)
	n := len(recs)

	line := func(i int) []byte {
		return raw[recs[i].start : recs[i].start+recs[i].length]
	}

	var (
		leafMBR func(i int) shape.Rect
		center  func(i int) shape.Point
	)
	switch b.Mode {
	case lib.BUILD_MODE_FAST, "":
		mbrs := make([]shape.Rect, n)
		centers := make([]shape.Point, n)
		for i := range recs {
			s, err := b.Parse(line(i))
			if err != nil {
				return 0, errors.Wrapf(err, "record %d", i)
			}
			mbrs[i] = s.MBR()
			centers[i] = mbrs[i].Center()
		}
		leafMBR = func(i int) shape.Rect { return mbrs[i] }
		center = func(i int) shape.Point { return centers[i] }
	case lib.BUILD_MODE_SLOW:
		for i := range recs {
			if _, err := b.Parse(line(i)); err != nil {
				return 0, errors.Wrapf(err, "record %d", i)
			}
		}
		leafMBR = func(i int) shape.Rect {
			s, _ := b.Parse(line(i))
			return s.MBR()
		}
		center = func(i int) shape.Point { return leafMBR(i).Center() }
	default:
		return 0, errors.Newf("unknown build mode %q", b.Mode)
	}

	leaves := level{nodes: strPack(n, b.Degree, center)}
	leaves.mbrs = make([]shape.Rect, len(leaves.nodes))

	putLeaf := func(p *disk.Page, off, node int) {
		entries := leaves.nodes[node]
		putNodeHeader(p, off, true, len(entries))
		mbr := shape.EmptyRect()
		for j, rec := range entries {
			m := leafMBR(rec)
			mbr = mbr.Expand(m)
			putEntry(p, off, j, m, recs[rec].dataOff, uint32(recs[rec].length))
		}
		leaves.mbrs[node] = mbr
	}

	var staged string
	if b.Mode == lib.BUILD_MODE_SLOW {
		name, err := b.stageLeaves(len(leaves.nodes), putLeaf)
		if err != nil {
			return 0, err
		}
		staged = name
		defer b.FS.Delete(staged)
	}

	var fast *disk.Page
	if staged == "" {
		fast = disk.NewPage(levelSize(leaves))
		off := 0
		for i := range leaves.nodes {
			putLeaf(fast, off, i)
			off += nodeSize(len(leaves.nodes[i]))
		}
	}

	levels := []level{leaves}
	for cur := leaves; len(cur.nodes) > 1; {
		mbrs := cur.mbrs
		next := level{nodes: strPack(len(mbrs), b.Degree, func(i int) shape.Point { return mbrs[i].Center() })}
		next.mbrs = make([]shape.Rect, len(next.nodes))
		for i, children := range next.nodes {
			m := shape.EmptyRect()
			for _, c := range children {
				m = m.Expand(mbrs[c])
			}
			next.mbrs[i] = m
		}
		levels = append(levels, next)
		cur = next
	}

	// base offsets, root level first
	height := len(levels)
	base := make([]int, height)
	off := HEADER_SIZE
	nodeCount := 0
	for l := height - 1; l >= 0; l-- {
		base[l] = off
		off += levelSize(levels[l])
		nodeCount += len(levels[l].nodes)
	}
	overhead := StorageOverhead(n, b.Degree)
	if int64(off) != overhead {
		return 0, errors.Wrapf(ErrCorrupt, "node region %d bytes, expected %d", off, overhead)
	}

	upper := disk.NewPage(base[0])
	upper.PutUint32(0, uint32(b.Degree))
	upper.PutUint32(4, uint32(height))
	upper.PutUint32(8, uint32(nodeCount))
	upper.PutUint32(12, uint32(n))
	upper.PutUint64(16, dataLen)
	full := fullNodeSize(b.Degree)
	for l := height - 1; l >= 1; l-- {
		off := base[l]
		lower := levels[l-1]
		for _, children := range levels[l].nodes {
			putNodeHeader(upper, off, false, len(children))
			for j, c := range children {
				putEntry(upper, off, j, lower.mbrs[c], uint64(base[l-1]+c*full), 0)
			}
			off += nodeSize(len(children))
		}
	}

	var written int64
	write := func(p []byte) error {
		m, err := w.Write(p)
		written += int64(m)
		return err
	}
	if err := write([]byte(lib.RTREE_SIGNATURE)); err != nil {
		return written, errors.Wrap(err, "write signature")
	}
	if err := write(upper.Contents()); err != nil {
		return written, errors.Wrap(err, "write index")
	}
	if fast != nil {
		if err := write(fast.Contents()); err != nil {
			return written, errors.Wrap(err, "write leaves")
		}
	} else {
		r, err := b.FS.Open(staged)
		if err != nil {
			return written, err
		}
		m, err := io.Copy(w, r)
		written += m
		r.Close()
		if err != nil {
			return written, errors.Wrap(err, "copy staged leaves")
		}
	}
	for i := range recs {
		if err := write(line(i)); err != nil {
			return written, errors.Wrap(err, "write data")
		}
		if err := write([]byte{lib.NEW_LINE}); err != nil {
			return written, errors.Wrap(err, "write data")
		}
	}
	return written, nil
}

func (b *Builder) stageLeaves(count int, putLeaf func(p *disk.Page, off, node int)) (string, error) {
	if b.FS == nil {
		return "", errors.New("slow build mode needs a file system for staging")
	}
	name := path.Join(b.StagingDir, lib.STAGING_PREFIX+uuid.New().String())
	f, err := b.FS.Create(name, true)
	if err != nil {
		return "", err
	}
	for i := 0; i < count; i++ {
		p := disk.NewPage(fullNodeSize(b.Degree))
		putLeaf(p, 0, i)
		size := nodeSize(int(p.GetUint16(1)))
		if _, err := f.Write(p.Contents()[:size]); err != nil {
			f.Close()
			b.FS.Delete(name)
			return "", errors.Wrapf(err, "stage leaf %d", i)
		}
	}
	if err := f.Close(); err != nil {
		b.FS.Delete(name)
		return "", errors.Wrap(err, "close staging file")
	}
	return name, nil
}

func levelSize(l level) int {
	size := 0
	for _, n := range l.nodes {
		size += nodeSize(len(n))
	}
	return size
}

func putNodeHeader(p *disk.Page, off int, leaf bool, count int) {
	p.PutBool(off, leaf)
	p.PutUint16(off+1, uint16(count))
}

func putEntry(p *disk.Page, off, i int, mbr shape.Rect, ref uint64, length uint32) {
	e := off + NODE_HEADER_SIZE + i*ENTRY_SIZE
	p.PutFloat64(e, mbr.X1)
	p.PutFloat64(e+8, mbr.Y1)
	p.PutFloat64(e+16, mbr.X2)
	p.PutFloat64(e+24, mbr.Y2)
	p.PutUint64(e+32, ref)
	p.PutUint32(e+40, length)
}
