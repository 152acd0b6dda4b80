package job

import (
	"context"
	"path"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/pack"
	"github.com/lintang-b-s/sgrid/lib/sample"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/lintang-b-s/sgrid/lib/writer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PartitionOptions struct {
	Inputs []string
	Output string
	// Extent of the grid. nil uses the MBR of the inputs; records outside a
	// given extent go to their nearest cell.
	Extent *shape.Rect
	// Pack places the cells by sampling the input instead of cutting the
	// extent into a uniform grid.
	Pack bool
	// Index writes every cell as r-tree files of at most one block.
	Index bool
}

type PartitionResult struct {
	Output  string
	Extent  shape.Rect
	Cells   []shape.CellInfo
	Files   []writer.CellFile
	Records int64
	Bytes   int64
	Sample  sample.Stats
}

// inputStats of one scan over the inputs.
type inputStats struct {
	mbr     shape.Rect
	bytes   int64
	records int64
}

// Partition writes every record of the inputs into the cell files of a grid
// over their extent, then the cell table (_master) and the _SUCCESS marker.
// A record that overlaps several cells is written to each of them.
func Partition(ctx context.Context, env *Env, opts PartitionOptions) (_ *PartitionResult, err error) {
	ctx, span := tracer.Start(ctx, "job.Partition", trace.WithAttributes(
		attribute.String("output", opts.Output),
		attribute.Bool("pack", opts.Pack),
		attribute.Bool("index", opts.Index),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(opts.Inputs) == 0 {
		return nil, errors.New("partition needs at least one input")
	}
	if opts.Output == "" {
		return nil, errors.New("partition needs an output directory")
	}
	parse, err := env.parser()
	if err != nil {
		return nil, err
	}
	if err := prepareOutput(env, opts.Output, func(name string) bool {
		_, _, ok := writer.ParseCellFileName(name)
		return ok
	}); err != nil {
		return nil, err
	}

	st, err := scanInputs(ctx, env, parse, opts.Inputs)
	if err != nil {
		return nil, err
	}
	if opts.Extent != nil && st.records > 0 {
		st.mbr = *opts.Extent
	}
	res := &PartitionResult{Output: opts.Output, Extent: st.mbr, Records: st.records, Bytes: st.bytes}
	env.Logger.Info("scanned input",
		zap.Strings("inputs", opts.Inputs),
		zap.Int64("records", st.records),
		zap.Int64("bytes", st.bytes))

	var table *grid.CellTable
	if !st.mbr.IsEmpty() {
		n := partitionCellCount(st, env.Config.BlockSize, opts.Index)
		if opts.Pack {
			s := sample.New(env.FS, parse, sample.Options{
				Ratio:         env.Config.Sample.Ratio,
				MaxLineLength: env.Config.Sample.MaxLineLength,
				MaxRetries:    env.Config.Sample.MaxRetries,
				Seed:          env.Config.Sample.Seed,
				Logger:        env.Logger,
				Metrics:       env.Metrics,
			})
			points, sst, err := s.Sample(ctx, opts.Inputs)
			if err != nil {
				return nil, err
			}
			res.Sample = sst
			table = grid.NewCellTable(pack.PackInRectangles(st.mbr, points, n))
		} else {
			g := grid.NewGridInfo(st.mbr)
			g.CalculateCellCount(n)
			table = grid.NewUniformTable(g)
		}
	} else {
		table = grid.NewCellTable(nil)
	}
	res.Cells = table.Cells()
	env.Logger.Info("cells chosen",
		zap.Int("cells", len(res.Cells)),
		zap.Bool("pack", opts.Pack),
		zap.Int("samples", res.Sample.Samples))

	wopts := writer.Options{
		Dir:                 opts.Output,
		BlockSize:           env.Config.BlockSize,
		Overwrite:           env.Config.Writer.Overwrite,
		MaxConcurrentCloses: env.Config.Writer.MaxConcurrentCloses,
		Logger:              env.Logger,
		Metrics:             env.Metrics,
	}
	var w interface {
		WriteShape(shape.Shape) error
		Close() error
		Files() []writer.CellFile
	}
	if opts.Index {
		rw, err := writer.NewRTreeWriter(ctx, env.FS, table, wopts, writer.RTreeOptions{
			Degree:    env.Config.RTree.Degree,
			BuildMode: env.Config.RTree.BuildMode,
			Parse:     parse,
		})
		if err != nil {
			return nil, err
		}
		w = rw
	} else {
		w = writer.NewGridWriter(ctx, env.FS, table, wopts)
	}

	for _, name := range opts.Inputs {
		err := scanFile(env.FS, name, func(off int64, line []byte) error {
			s, err := parse(line)
			if err != nil {
				return errors.Wrapf(err, "%s at byte %d", name, off)
			}
			return w.WriteShape(s)
		})
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			w.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	res.Files = w.Files()

	if err := disk.WriteFile(env.FS, masterName(opts.Output), grid.EncodeCells(res.Cells)); err != nil {
		return nil, err
	}
	if err := disk.WriteFile(env.FS, successName(opts.Output), nil); err != nil {
		return nil, err
	}
	env.Logger.Info("partition done",
		zap.String("output", opts.Output),
		zap.Int("files", len(res.Files)))
	return res, nil
}

// partitionCellCount: one cell per block of input, RTREE_SIZE_FACTOR times
// more when the cells are indexed so that most cells fit a single r-tree file.
func partitionCellCount(st inputStats, blockSize int64, index bool) int {
	if st.mbr.Width() == 0 && st.mbr.Height() == 0 {
		return 1
	}
	size := st.bytes
	if index {
		size *= lib.RTREE_SIZE_FACTOR
	}
	n := lib.CeilDiv(size, blockSize)
	if n < 1 {
		n = 1
	}
	return int(n)
}

// scanInputs parses every record once to find the extent, the input size and
// the record count. A malformed record fails the scan.
func scanInputs(ctx context.Context, env *Env, parse func([]byte) (shape.Shape, error), names []string) (inputStats, error) {
	splits, total, err := makeSplits(env.FS, names, env.Config.BlockSize)
	if err != nil {
		return inputStats{}, err
	}
	st := inputStats{mbr: shape.EmptyRect(), bytes: total}
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(env.Config.Join.Parallelism)
	for _, sp := range splits {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := shape.EmptyRect()
			var count int64
			err := scanSplit(env.FS, sp, func(off int64, line []byte) error {
				s, err := parse(line)
				if err != nil {
					return errors.Wrapf(err, "%s at byte %d", sp.name, off)
				}
				local = local.Expand(s.MBR())
				count++
				return nil
			})
			if err != nil {
				return err
			}
			mu.Lock()
			st.mbr = st.mbr.Expand(local)
			st.records += count
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return inputStats{}, err
	}
	return st, nil
}

func masterName(dir string) string  { return path.Join(dir, lib.MASTER_FILE_NAME) }
func successName(dir string) string { return path.Join(dir, lib.SUCCESS_FILE_NAME) }

// prepareOutput refuses a finished output unless overwrite is on. With
// overwrite the _SUCCESS marker is removed first, then the cell table and
// every file for which owned returns true.
func prepareOutput(env *Env, dir string, owned func(name string) bool) error {
	done, err := env.FS.Exists(successName(dir))
	if err != nil {
		return err
	}
	if done && !env.Config.Writer.Overwrite {
		return errors.Wrapf(disk.ErrExists, "output %s", dir)
	}
	if done {
		if err := env.FS.Delete(successName(dir)); err != nil {
			return err
		}
	}
	if !env.Config.Writer.Overwrite {
		return nil
	}
	if ok, err := env.FS.Exists(dir); err != nil || !ok {
		return err
	}
	names, err := env.FS.List(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if owned(name) || name == masterName(dir) {
			if err := env.FS.Delete(name); err != nil {
				return err
			}
		}
	}
	return nil
}
