package job

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/join"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type JoinOptions struct {
	// Inputs[0] and Inputs[1] are the two relations. Records of Inputs[i]
	// carry source i.
	Inputs [2]string
	// Output directory. Empty picks join-<uuid>.
	Output string
}

type JoinResult struct {
	Output string
	Grid   *grid.GridInfo
	Pairs  int64
	// part files written, one per cell that produced pairs
	Files []string
}

// SpatialJoin reports every pair (a, b), a from Inputs[0] and b from
// Inputs[1], whose shapes intersect. The map phase assigns each record to
// every overlapping cell of a grid over both inputs; the reduce phase plane
// sweeps each cell. Without join.dedup a pair overlapping several cells is
// reported once per cell.
func SpatialJoin(ctx context.Context, env *Env, opts JoinOptions) (_ *JoinResult, err error) {
	if opts.Output == "" {
		opts.Output = "join-" + uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "job.SpatialJoin", trace.WithAttributes(
		attribute.String("output", opts.Output),
		attribute.Bool("dedup", env.Config.Join.Dedup),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	parse, err := env.parser()
	if err != nil {
		return nil, err
	}
	if err := prepareOutput(env, opts.Output, isPartFile); err != nil {
		return nil, err
	}
	inputs := opts.Inputs[:]

	st, err := scanInputs(ctx, env, parse, inputs)
	if err != nil {
		return nil, err
	}
	res := &JoinResult{Output: opts.Output}
	if st.records == 0 {
		return res, disk.WriteFile(env.FS, successName(opts.Output), nil)
	}
	res.Grid = join.JoinGrid(st.mbr, st.bytes, env.Config.Join.ReplicationOverhead, env.Config.BlockSize)
	descriptor := grid.EncodeCells(res.Grid.AllCells())
	env.Logger.Info("join grid",
		zap.Int("columns", res.Grid.Columns),
		zap.Int("rows", res.Grid.Rows),
		zap.Int64("bytes", st.bytes))

	shuffle, err := joinMap(ctx, env, parse, inputs, descriptor)
	if err != nil {
		return nil, err
	}
	if err := joinReduce(ctx, env, opts.Output, descriptor, shuffle, res); err != nil {
		return nil, err
	}
	if err := disk.WriteFile(env.FS, successName(opts.Output), nil); err != nil {
		return nil, err
	}
	env.Logger.Info("join done",
		zap.String("output", opts.Output),
		zap.Int64("pairs", res.Pairs),
		zap.Int("files", len(res.Files)))
	return res, nil
}

func isPartFile(name string) bool {
	return strings.HasPrefix(path.Base(name), "part-")
}

// cellTable rebuilds the grid from its encoded form, the way a remote task
// would receive it.
func cellTable(descriptor []byte) (*grid.CellTable, error) {
	cells, err := grid.DecodeCells(descriptor)
	if err != nil {
		return nil, errors.Wrap(err, "decode grid descriptor")
	}
	return grid.NewCellTable(cells), nil
}

// joinMap returns, per cell id, the binary encoded tagged records routed to
// that cell.
func joinMap(ctx context.Context, env *Env, parse func([]byte) (shape.Shape, error), inputs []string, descriptor []byte) (map[int64][]byte, error) {
	splits, _, err := makeSplits(env.FS, inputs, env.Config.BlockSize)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	shuffle := make(map[int64][]byte)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(env.Config.Join.Parallelism)
	for _, sp := range splits {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cells, err := cellTable(descriptor)
			if err != nil {
				return err
			}
			p := join.NewPartitioner(cells)
			local := make(map[int64][]byte)
			emit := func(cellID int64, rec *shape.TaggedShape) error {
				local[cellID] = shape.AppendBinary(local[cellID], rec)
				return nil
			}
			err = scanSplit(env.FS, sp, func(off int64, line []byte) error {
				s, err := parse(line)
				if err != nil {
					return errors.Wrapf(err, "%s at byte %d", sp.name, off)
				}
				return p.Map(shape.NewTaggedShape(off, sp.source, s), emit)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			for id, b := range local {
				shuffle[id] = append(shuffle[id], b...)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return shuffle, nil
}

func decodeRecords(b []byte) ([]*shape.TaggedShape, error) {
	var recs []*shape.TaggedShape
	for len(b) > 0 {
		s, n, err := shape.DecodeBinary(b)
		if err != nil {
			return nil, err
		}
		t, ok := s.(*shape.TaggedShape)
		if !ok {
			return nil, errors.Wrapf(shape.ErrMalformed, "shuffle record of kind %s", s.Kind())
		}
		recs = append(recs, t)
		b = b[n:]
	}
	// map tasks finish in any order
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Source != recs[j].Source {
			return recs[i].Source < recs[j].Source
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

func joinReduce(ctx context.Context, env *Env, output string, descriptor []byte, shuffle map[int64][]byte, res *JoinResult) error {
	ids := make([]int64, 0, len(shuffle))
	for id := range shuffle {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pool, err := ants.NewPool(env.Config.Join.Parallelism)
	if err != nil {
		return errors.Wrap(err, "create reduce pool")
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		firstMu sync.Mutex
		first   error
		pairs   atomic.Int64
		files   = make([]string, len(ids))
	)
	setError := func(err error) {
		if err == nil {
			return
		}
		firstMu.Lock()
		if first == nil {
			first = err
		}
		firstMu.Unlock()
	}

	for i, id := range ids {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				setError(ctx.Err())
				return
			}
			name, n, err := reduceCell(env, output, descriptor, id, shuffle[id])
			if err != nil {
				setError(err)
				return
			}
			pairs.Add(int64(n))
			files[i] = name
		}); err != nil {
			wg.Done()
			setError(err)
			break
		}
	}
	wg.Wait()
	if first != nil {
		return first
	}

	res.Pairs = pairs.Load()
	for _, name := range files {
		if name != "" {
			res.Files = append(res.Files, name)
		}
	}
	return nil
}

// reduceCell joins one cell and writes its pairs to part-<cell>. A cell with
// no pair writes nothing and returns an empty name.
func reduceCell(env *Env, output string, descriptor []byte, cellID int64, encoded []byte) (string, int, error) {
	cells, err := cellTable(descriptor)
	if err != nil {
		return "", 0, err
	}
	recs, err := decodeRecords(encoded)
	if err != nil {
		return "", 0, errors.Wrapf(err, "cell %d", cellID)
	}
	var out []byte
	n, err := join.NewJoiner(cells, env.Config.Join.Dedup, env.Metrics).Reduce(cellID, recs, func(p join.Pair) error {
		out = p.AppendText(out)
		out = append(out, lib.NEW_LINE)
		return nil
	})
	if err != nil || n == 0 {
		return "", n, err
	}
	name := path.Join(output, fmt.Sprintf(lib.PART_FILE_FORMAT, cellID))
	if err := disk.WriteFile(env.FS, name, out); err != nil {
		return "", 0, err
	}
	return name, n, nil
}
