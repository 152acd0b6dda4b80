package writer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/rtree"
	"github.com/lintang-b-s/sgrid/lib/shape"
)

type RTreeOptions struct {
	Degree    int
	BuildMode string
	// Parse turns one written line back into its shape when the cell is rebuilt.
	Parse func(line []byte) (shape.Shape, error)
	// 0 means lib.RTREE_MAX_CONCURRENT_CLOSES. Each close holds a whole cell
	// in memory.
	MaxConcurrentCloses int
}

// RTreeWriter is a GridWriter whose cell files never grow past one block and
// are rebuilt into r-tree files when they close.
//
// Per cell: EMPTY -> OPEN -> OVERFLOW_CLOSE | FINAL_CLOSE -> INDEXED. A record
// that would push the projected r-tree file past the block size closes the
// current file (OVERFLOW_CLOSE) and goes to the next sequence file of the
// same cell.
type RTreeWriter struct {
	*GridWriter
}

func NewRTreeWriter(ctx context.Context, fs disk.FileSystem, cells *grid.CellTable, opts Options, ropts RTreeOptions) (*RTreeWriter, error) {
	if ropts.Degree == 0 {
		ropts.Degree = lib.RTREE_DEGREE
	}
	if ropts.Degree < 2 || ropts.Degree > rtree.MAX_DEGREE {
		return nil, errors.Newf("r-tree degree out of range: %d", ropts.Degree)
	}
	if ropts.BuildMode == "" {
		ropts.BuildMode = lib.BUILD_MODE_FAST
	}
	if ropts.Parse == nil {
		return nil, errors.New("r-tree writer needs a record parser")
	}
	if ropts.MaxConcurrentCloses < 1 {
		ropts.MaxConcurrentCloses = lib.RTREE_MAX_CONCURRENT_CLOSES
	}
	opts.MaxConcurrentCloses = ropts.MaxConcurrentCloses
	p := &rtreePolicy{opts: ropts}
	w := newGridWriter(ctx, fs, cells, opts, p)
	p.blockSize = w.opts.BlockSize
	return &RTreeWriter{GridWriter: w}, nil
}

type rtreePolicy struct {
	opts      RTreeOptions
	blockSize int64
}

// projectedSize is the size of the r-tree file of s if a record of recLen bytes were added.
func (p *rtreePolicy) projectedSize(s *sink, recLen int) int64 {
	return lib.RTREE_SIGNATURE_SIZE + rtree.StorageOverhead(s.count+1, p.opts.Degree) + s.bytes + int64(recLen) + 1
}

func (p *rtreePolicy) admit(s *sink, recLen int) bool {
	return s.count == 0 || p.projectedSize(s, recLen) <= p.blockSize
}

func (p *rtreePolicy) finish(ctx context.Context, w *GridWriter, sk *sink) (CellFile, error) {
	if err := sk.file.Close(); err != nil {
		return CellFile{}, errors.Wrapf(err, "close raw %s", sk.name)
	}
	raw, err := disk.ReadAll(w.fs, sk.name)
	if err != nil {
		return CellFile{}, err
	}
	if err := w.fs.Delete(sk.name); err != nil {
		return CellFile{}, err
	}

	f, err := w.fs.Create(sk.name, true)
	if err != nil {
		return CellFile{}, err
	}
	b := &rtree.Builder{
		Degree:     p.opts.Degree,
		Mode:       p.opts.BuildMode,
		Parse:      p.opts.Parse,
		FS:         w.fs,
		StagingDir: w.opts.Dir,
	}
	if _, err := b.Write(f, raw); err != nil {
		f.Close()
		return CellFile{}, errors.Wrapf(err, "bulk load %s", sk.name)
	}
	if err := pad(f, p.blockSize); err != nil {
		f.Close()
		return CellFile{}, err
	}
	size := f.Pos()
	if err := f.Close(); err != nil {
		return CellFile{}, errors.Wrapf(err, "close %s", sk.name)
	}
	w.opts.Metrics.IndexBytes(size)
	sk.state = INDEXED
	res := CellFile{CellID: sk.cellID, Seq: sk.seq, Name: sk.name, Records: sk.count, Size: size, State: INDEXED}
	sk.count, sk.bytes = 0, 0
	return res, nil
}
