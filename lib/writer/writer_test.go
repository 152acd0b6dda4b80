package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/rtree"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFS(t *testing.T, blockSize int64) *disk.LocalFS {
	fs, err := disk.NewLocalFS(t.TempDir(), blockSize)
	require.NoError(t, err)
	return fs
}

func twoCells() *grid.CellTable {
	return grid.NewCellTable([]shape.CellInfo{
		*shape.NewCellInfo(1, 0, 0, 50, 100),
		*shape.NewCellInfo(2, 50, 0, 100, 100),
	})
}

func lines(b []byte) []string {
	var out []string
	for _, l := range bytes.Split(b, []byte{'\n'}) {
		if len(l) > 0 {
			out = append(out, string(l))
		}
	}
	return out
}

func TestGridWriterRawCells(t *testing.T) {
	fs := newFS(t, 256)
	w := NewGridWriter(context.Background(), fs, twoCells(), Options{Dir: "out", Logger: zaptest.NewLogger(t)})

	require.NoError(t, w.Write(1, shape.NewRect(1, 1, 2, 2)))
	require.NoError(t, w.Write(2, shape.NewPoint(60, 60)))
	require.NoError(t, w.Write(1, shape.NewRect(3, 3, 4, 4)))
	require.NoError(t, w.Close())

	files := w.Files()
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, int64(256), f.Size)
		assert.Equal(t, CLOSED, f.State)
		assert.Equal(t, metrics.REASON_FINAL, f.Reason)
	}

	b, err := disk.ReadAll(fs, CellFileName("out", 1, 0))
	require.NoError(t, err)
	assert.Len(t, b, 256)
	assert.True(t, bytes.HasPrefix(b, []byte("1,1,2,2\n3,3,4,4\n\n")), "records in write order then sentinel")
	assert.Equal(t, []string{"1,1,2,2", "3,3,4,4"}, lines(b))

	assert.True(t, errors.Is(w.Write(1, shape.NewPoint(0, 0)), ErrClosed))
}

func TestBoundaryReplication(t *testing.T) {
	fs := newFS(t, 128)
	w := NewGridWriter(context.Background(), fs, twoCells(), Options{Dir: "out"})

	require.NoError(t, w.WriteShape(shape.NewRect(40, 10, 60, 20)))
	require.NoError(t, w.WriteShape(shape.NewRect(10, 10, 20, 20)))
	require.NoError(t, w.Close())

	left, err := disk.ReadAll(fs, CellFileName("out", 1, 0))
	require.NoError(t, err)
	right, err := disk.ReadAll(fs, CellFileName("out", 2, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"40,10,60,20", "10,10,20,20"}, lines(left))
	assert.Equal(t, []string{"40,10,60,20"}, lines(right))
}

func TestSentinelClosesCell(t *testing.T) {
	fs := newFS(t, 64)
	w := NewGridWriter(context.Background(), fs, nil, Options{Dir: "out"})

	require.NoError(t, w.Write(7, shape.NewPoint(1, 1)))
	require.NoError(t, w.Write(7, nil))
	require.NoError(t, w.Write(7, shape.NewPoint(2, 2)))
	require.NoError(t, w.Write(8, nil), "sentinel on an empty cell is a no-op")
	require.NoError(t, w.Close())

	files := w.Files()
	require.Len(t, files, 2)
	assert.Equal(t, 0, files[0].Seq)
	assert.Equal(t, 1, files[1].Seq)
	assert.Equal(t, 1, files[0].Records)

	assert.Error(t, w.WriteShape(shape.NewPoint(0, 0)), "no cell table")
}

func newRTreeWriter(t *testing.T, fs disk.FileSystem, cells *grid.CellTable, blockSize int64, overwrite bool, degree int) *RTreeWriter {
	parse, err := shape.Parser(lib.SHAPE_RECT)
	require.NoError(t, err)
	w, err := NewRTreeWriter(context.Background(), fs, cells,
		Options{Dir: "idx", BlockSize: blockSize, Overwrite: overwrite, Metrics: metrics.New(), Logger: zaptest.NewLogger(t)},
		RTreeOptions{Degree: degree, Parse: parse})
	require.NoError(t, err)
	return w
}

func randomRects(n int) []*shape.Rect {
	faker := gofakeit.New(0)
	out := make([]*shape.Rect, n)
	for i := range out {
		x, y := faker.Float64Range(0, 49), faker.Float64Range(0, 99)
		out[i] = shape.NewRect(x, y, x+faker.Float64Range(0, 1), y+faker.Float64Range(0, 1))
	}
	return out
}

func TestRTreeWriterOverflow(t *testing.T) {
	const blockSize = 2048
	fs := newFS(t, blockSize)
	w := newRTreeWriter(t, fs, nil, blockSize, false, 4)
	rects := randomRects(300)
	for _, r := range rects {
		require.NoError(t, w.Write(1, r))
	}
	require.NoError(t, w.Close())

	files := w.Files()
	require.Greater(t, len(files), 1, "cell must overflow into several files")

	seen := map[string]int{}
	total := 0
	for i, f := range files {
		assert.Equal(t, i, f.Seq)
		assert.Equal(t, INDEXED, f.State)
		if i < len(files)-1 {
			assert.Equal(t, metrics.REASON_OVERFLOW, f.Reason)
		} else {
			assert.Equal(t, metrics.REASON_FINAL, f.Reason)
		}

		size, err := fs.Length(f.Name)
		require.NoError(t, err)
		assert.Equal(t, int64(blockSize), size, "file %s", f.Name)

		b, err := disk.ReadAll(fs, f.Name)
		require.NoError(t, err)
		tree, err := rtree.Open(bytes.NewReader(b), int64(len(b)))
		require.NoError(t, err)
		assert.Equal(t, f.Records, tree.Len())
		require.NoError(t, tree.All(func(h rtree.Hit) bool {
			seen[string(h.Record)]++
			return true
		}))
		total += tree.Len()
	}
	assert.Equal(t, len(rects), total, "no record lost on overflow")
	for _, r := range rects {
		assert.Equal(t, 1, seen[shape.Text(r)], "record %s", shape.Text(r))
	}
}

func TestRTreeWriterOversizedRecord(t *testing.T) {
	const blockSize = 64
	fs := newFS(t, blockSize)
	w := newRTreeWriter(t, fs, nil, blockSize, false, lib.RTREE_DEGREE)
	require.NoError(t, w.Write(3, shape.NewRect(1, 1, 2, 2)))
	require.NoError(t, w.Write(3, shape.NewRect(5, 5, 6, 6)))
	require.NoError(t, w.Close())

	files := w.Files()
	require.Len(t, files, 2, "each oversized record gets its own file")
	for _, f := range files {
		assert.Equal(t, 1, f.Records)
		assert.Equal(t, int64(2*blockSize), f.Size)
	}
}

func TestRTreeWriterIdempotentOverwrite(t *testing.T) {
	const blockSize = 4096
	fs := newFS(t, blockSize)
	rects := randomRects(400)

	run := func(overwrite bool) (map[string][]byte, error) {
		w := newRTreeWriter(t, fs, twoCells(), blockSize, overwrite, 6)
		for _, r := range rects {
			if err := w.WriteShape(r); err != nil {
				w.Close()
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		out := map[string][]byte{}
		for _, f := range w.Files() {
			b, err := disk.ReadAll(fs, f.Name)
			require.NoError(t, err)
			out[f.Name] = b
		}
		return out, nil
	}

	first, err := run(false)
	require.NoError(t, err)
	second, err := run(true)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = run(false)
	assert.True(t, errors.Is(err, disk.ErrExists))
}

func TestRTreeWriterOptions(t *testing.T) {
	fs := newFS(t, 1024)
	_, err := NewRTreeWriter(context.Background(), fs, nil, Options{}, RTreeOptions{})
	assert.Error(t, err, "parser required")

	parse, _ := shape.Parser(lib.SHAPE_RECT)
	_, err = NewRTreeWriter(context.Background(), fs, nil, Options{}, RTreeOptions{Degree: 1, Parse: parse})
	assert.Error(t, err)

	w, err := NewRTreeWriter(context.Background(), fs, nil, Options{}, RTreeOptions{Parse: parse})
	require.NoError(t, err)
	assert.Equal(t, int64(1024), w.opts.BlockSize)
	assert.Equal(t, lib.RTREE_MAX_CONCURRENT_CLOSES, w.opts.MaxConcurrentCloses)
	require.NoError(t, w.Close())
}

func TestCellFileName(t *testing.T) {
	name := CellFileName("out/idx", 42, 3)
	assert.Equal(t, "out/idx/cell_00042_0003", name)
	id, seq, ok := ParseCellFileName(name)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 3, seq)

	for _, bad := range []string{"out/_master", "out/cell_x_0001", "cell_00001", "part-00001"} {
		_, _, ok := ParseCellFileName(bad)
		assert.False(t, ok, bad)
	}
}
