// Package writer routes records to per-cell files. GridWriter writes raw
// newline-delimited cells; RTreeWriter additionally keeps every cell file
// within one block and rebuilds it as a bulk-loaded r-tree when it closes.
package writer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/concurrent"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/logger"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("writer closed")

var tracer = otel.Tracer("github.com/lintang-b-s/sgrid/lib/writer")

type CellState int

const (
	EMPTY CellState = iota
	OPEN
	OVERFLOW_CLOSE
	FINAL_CLOSE
	INDEXED
	// raw cell file closed and padded
	CLOSED
)

func (s CellState) String() string {
	switch s {
	case EMPTY:
		return "empty"
	case OPEN:
		return "open"
	case OVERFLOW_CLOSE:
		return "overflow_close"
	case FINAL_CLOSE:
		return "final_close"
	case INDEXED:
		return "indexed"
	case CLOSED:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	// Dir on the file system the cell files go to.
	Dir                 string
	BlockSize           int64
	Overwrite           bool
	MaxConcurrentCloses int
	Logger              *zap.Logger
	Metrics             *metrics.Metrics
}

// CellFile describes one finished cell file.
type CellFile struct {
	CellID  int64
	Seq     int
	Name    string
	Records int
	Size    int64
	Reason  string
	State   CellState
}

// sink. state satu file cell yang sedang ditulis. hanya dimiliki satu writer.
type sink struct {
	cellID int64
	seq    int
	name   string
	file   disk.File
	count  int
	// record bytes written, newline included
	bytes int64
	state CellState
}

type policy interface {
	// admit reports whether a record of recLen bytes (no newline) still fits s.
	admit(s *sink, recLen int) bool
	// finish runs on the closing pool once s is detached.
	finish(ctx context.Context, w *GridWriter, s *sink) (CellFile, error)
}

type GridWriter struct {
	ctx     context.Context
	fs      disk.FileSystem
	cells   *grid.CellTable
	opts    Options
	log     *zap.Logger
	policy  policy
	closing *concurrent.Group

	mu      sync.Mutex
	sinks   map[int64]*sink
	nextSeq map[int64]int
	results []CellFile
	closed  bool
	line    []byte
	overlap []*shape.CellInfo
}

// NewGridWriter writes raw cell files. cells may be nil when only Write with
// explicit cell ids is used.
func NewGridWriter(ctx context.Context, fs disk.FileSystem, cells *grid.CellTable, opts Options) *GridWriter {
	if opts.MaxConcurrentCloses < 1 {
		opts.MaxConcurrentCloses = lib.MAX_CONCURRENT_CLOSES
	}
	return newGridWriter(ctx, fs, cells, opts, plainPolicy{})
}

func newGridWriter(ctx context.Context, fs disk.FileSystem, cells *grid.CellTable, opts Options, p policy) *GridWriter {
	if opts.BlockSize <= 0 {
		opts.BlockSize = fs.DefaultBlockSize()
	}
	return &GridWriter{
		ctx:     ctx,
		fs:      fs,
		cells:   cells,
		opts:    opts,
		log:     logger.OrNop(opts.Logger),
		policy:  p,
		closing: concurrent.NewGroup(opts.MaxConcurrentCloses),
		sinks:   make(map[int64]*sink),
		nextSeq: make(map[int64]int),
	}
}

// CellFileName of sequence seq of cell id inside dir.
func CellFileName(dir string, id int64, seq int) string {
	return path.Join(dir, fmt.Sprintf(lib.CELL_FILE_FORMAT, id, seq))
}

// ParseCellFileName is the inverse of CellFileName on the base name.
func ParseCellFileName(name string) (int64, int, bool) {
	base := path.Base(name)
	if !strings.HasPrefix(base, "cell_") {
		return 0, 0, false
	}
	idText, seqText, ok := strings.Cut(strings.TrimPrefix(base, "cell_"), "_")
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err := strconv.Atoi(seqText)
	if err != nil {
		return 0, 0, false
	}
	return id, seq, true
}

// Write appends the text form of s to the file of cell id. A nil s is the
// end-of-run sentinel and closes the cell.
func (w *GridWriter) Write(id int64, s shape.Shape) error {
	if s == nil {
		return w.CloseCell(id)
	}
	if id < 0 {
		return errors.Newf("negative cell id %d", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.line = s.AppendText(w.line[:0])
	return w.writeLocked(id, w.line)
}

// WriteShape writes s to every cell it overlaps. A shape outside every cell
// goes to the nearest one.
func (w *GridWriter) WriteShape(s shape.Shape) error {
	if w.cells == nil {
		return errors.New("writer has no cell table")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.line = s.AppendText(w.line[:0])
	w.overlap = w.cells.Assign(w.overlap[:0], s.MBR())
	for _, c := range w.overlap {
		if err := w.writeLocked(c.ID, w.line); err != nil {
			return err
		}
	}
	return nil
}

func (w *GridWriter) writeLocked(id int64, rec []byte) error {
	sk, err := w.sinkLocked(id)
	if err != nil {
		return err
	}
	if !w.policy.admit(sk, len(rec)) {
		w.detachLocked(sk, OVERFLOW_CLOSE)
		// a fresh sink always takes its first record
		if sk, err = w.sinkLocked(id); err != nil {
			return err
		}
	}
	if _, err := sk.file.Write(rec); err != nil {
		return errors.Wrapf(err, "write %s", sk.name)
	}
	if _, err := sk.file.Write([]byte{lib.NEW_LINE}); err != nil {
		return errors.Wrapf(err, "write %s", sk.name)
	}
	sk.count++
	sk.bytes += int64(len(rec)) + 1
	w.opts.Metrics.RecordsWritten(1)
	return nil
}

func (w *GridWriter) sinkLocked(id int64) (*sink, error) {
	if sk, ok := w.sinks[id]; ok {
		return sk, nil
	}
	seq := w.nextSeq[id]
	name := CellFileName(w.opts.Dir, id, seq)
	f, err := w.fs.Create(name, w.opts.Overwrite)
	if err != nil {
		return nil, errors.Wrapf(err, "open cell %d", id)
	}
	w.nextSeq[id] = seq + 1
	sk := &sink{cellID: id, seq: seq, name: name, file: f, state: OPEN}
	w.sinks[id] = sk
	return sk, nil
}

// detachLocked writes the sentinel, removes sk from the open set and hands it
// to the closing pool.
func (w *GridWriter) detachLocked(sk *sink, state CellState) {
	delete(w.sinks, sk.cellID)
	sk.state = state
	_, sentinelErr := sk.file.Write([]byte{lib.NEW_LINE})
	w.closing.Go(func() error {
		if sentinelErr != nil {
			sk.file.Close()
			return errors.Wrapf(sentinelErr, "write sentinel to %s", sk.name)
		}
		return w.closeSink(sk)
	})
}

func (w *GridWriter) closeSink(sk *sink) error {
	reason := metrics.REASON_FINAL
	if sk.state == OVERFLOW_CLOSE {
		reason = metrics.REASON_OVERFLOW
	}
	ctx, span := tracer.Start(w.ctx, "writer.closeCell", trace.WithAttributes(
		attribute.Int64("cell.id", sk.cellID),
		attribute.Int("cell.seq", sk.seq),
		attribute.String("cell.reason", reason),
		attribute.Int("cell.records", sk.count),
	))
	defer span.End()

	res, err := w.policy.finish(ctx, w, sk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "close cell %d seq %d", sk.cellID, sk.seq)
	}
	res.Reason = reason
	w.opts.Metrics.CellClosed(reason)
	w.log.Info("cell closed",
		zap.Int64("cell", res.CellID),
		zap.Int("seq", res.Seq),
		zap.String("reason", reason),
		zap.Int("records", res.Records),
		zap.Int64("size", res.Size),
		zap.Stringer("state", res.State))

	w.mu.Lock()
	w.results = append(w.results, res)
	w.mu.Unlock()
	return nil
}

// CloseCell writes the sentinel to cell id and closes it. The next record for
// id opens the next sequence file.
func (w *GridWriter) CloseCell(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if sk, ok := w.sinks[id]; ok {
		w.detachLocked(sk, FINAL_CLOSE)
	}
	return nil
}

// Close closes every open cell in id order and waits for all closes.
func (w *GridWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	ids := make([]int64, 0, len(w.sinks))
	for id := range w.sinks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.detachLocked(w.sinks[id], FINAL_CLOSE)
	}
	w.mu.Unlock()
	return w.closing.Close()
}

// Files returns the finished cell files ordered by cell id and sequence.
func (w *GridWriter) Files() []CellFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]CellFile, len(w.results))
	copy(out, w.results)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CellID != out[j].CellID {
			return out[i].CellID < out[j].CellID
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// pad appends newlines to f until its size is a multiple of blockSize.
func pad(f disk.File, blockSize int64) error {
	n := lib.AlignUp(f.Pos(), blockSize) - f.Pos()
	if n <= 0 {
		return nil
	}
	buf := make([]byte, min(n, 64*1024))
	for i := range buf {
		buf[i] = lib.NEW_LINE
	}
	for n > 0 {
		m := min(n, int64(len(buf)))
		if _, err := f.Write(buf[:m]); err != nil {
			return errors.Wrap(err, "pad")
		}
		n -= m
	}
	return nil
}

type plainPolicy struct{}

func (plainPolicy) admit(*sink, int) bool { return true }

func (plainPolicy) finish(_ context.Context, w *GridWriter, sk *sink) (CellFile, error) {
	if err := pad(sk.file, w.opts.BlockSize); err != nil {
		sk.file.Close()
		return CellFile{}, err
	}
	size := sk.file.Pos()
	if err := sk.file.Close(); err != nil {
		return CellFile{}, errors.Wrapf(err, "close %s", sk.name)
	}
	sk.state = CLOSED
	return CellFile{CellID: sk.cellID, Seq: sk.seq, Name: sk.name, Records: sk.count, Size: size, State: CLOSED}, nil
}
