package job

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/grid"
	"github.com/lintang-b-s/sgrid/lib/rtree"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"github.com/lintang-b-s/sgrid/lib/util"
	"github.com/lintang-b-s/sgrid/lib/writer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrNotPartitioned = errors.New("directory has no finished partition")

type QueryHit struct {
	CellID int64
	MBR    shape.Rect
	Record string
}

type cellFile struct {
	name   string
	cellID int64
}

type cellHits struct {
	hits []QueryHit
	err  error
}

// RangeQuery returns every record of the partitioned directory dir whose MBR
// intersects query, each exactly once, ordered by record text. R-tree cells
// are searched through their index, raw cells are scanned.
func RangeQuery(ctx context.Context, env *Env, dir string, query shape.Rect) (_ []QueryHit, err error) {
	ctx, span := tracer.Start(ctx, "job.RangeQuery", trace.WithAttributes(
		attribute.String("dir", dir),
		attribute.Float64Slice("query", []float64{query.X1, query.Y1, query.X2, query.Y2}),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	done, err := env.FS.Exists(successName(dir))
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, errors.Wrapf(ErrNotPartitioned, "%s", dir)
	}
	master, err := disk.ReadAll(env.FS, masterName(dir))
	if err != nil {
		return nil, err
	}
	cells, err := cellTable(master)
	if err != nil {
		return nil, err
	}
	parse, err := env.parser()
	if err != nil {
		return nil, err
	}

	// records outside the extent sit in their nearest cell, which need not
	// overlap the query
	all := !cells.Extent().ContainsRect(query)
	wanted := make(map[int64]bool)
	for _, c := range cells.Overlapping(nil, query) {
		wanted[c.ID] = true
	}
	names, err := env.FS.List(dir)
	if err != nil {
		return nil, err
	}
	var files []cellFile
	for _, name := range names {
		if id, _, ok := writer.ParseCellFileName(name); ok && (all || wanted[id]) {
			files = append(files, cellFile{name: name, cellID: id})
		}
	}

	wp := util.NewWorkerPool[cellFile, cellHits](env.Config.Join.Parallelism, len(files))
	wp.Start(func(f cellFile) cellHits {
		if err := ctx.Err(); err != nil {
			return cellHits{err: err}
		}
		hits, err := searchCellFile(env, cells, parse, f, query)
		return cellHits{hits: hits, err: err}
	})
	for _, f := range files {
		wp.AddJob(f)
	}
	close(wp.JobQueue)
	wp.Wait()

	var out []QueryHit
	for res := range wp.CollectResults() {
		if res.err != nil && err == nil {
			err = res.err
		}
		out = append(out, res.hits...)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Record != out[j].Record {
			return out[i].Record < out[j].Record
		}
		return out[i].CellID < out[j].CellID
	})
	env.Metrics.QueryResults(len(out))
	env.Logger.Debug("range query",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("results", len(out)))
	return out, nil
}

// reported decides which copy of a replicated record answers the query: the
// one in the cell owning the lower-left corner of record MBR ∩ query. A record
// placed in a cell it does not overlap was written to that cell only.
func reported(cells *grid.CellTable, cellID int64, mbr, query shape.Rect) bool {
	c, ok := cells.Get(cellID)
	if !ok {
		return false
	}
	if !c.Overlaps(mbr) {
		return true
	}
	x, y := grid.ReferencePoint(mbr, query)
	return cells.Owns(cellID, x, y)
}

func searchCellFile(env *Env, cells *grid.CellTable, parse func([]byte) (shape.Shape, error), f cellFile, query shape.Rect) ([]QueryHit, error) {
	tree, raw, err := openCellFile(env, f.name)
	if err != nil {
		return nil, err
	}
	var hits []QueryHit
	if tree != nil {
		err := tree.Search(query, func(h rtree.Hit) bool {
			if reported(cells, f.cellID, h.MBR, query) {
				hits = append(hits, QueryHit{CellID: f.cellID, MBR: h.MBR, Record: string(h.Record)})
			}
			return true
		})
		return hits, errors.Wrapf(err, "search %s", f.name)
	}
	for len(raw) > 0 {
		line := raw
		if i := bytes.IndexByte(raw, '\n'); i >= 0 {
			line, raw = raw[:i], raw[i+1:]
		} else {
			raw = nil
		}
		if len(line) == 0 {
			continue
		}
		s, err := parse(line)
		if err != nil {
			return nil, errors.Wrapf(err, "record in %s", f.name)
		}
		mbr := s.MBR()
		if mbr.Overlaps(query) && reported(cells, f.cellID, mbr, query) {
			hits = append(hits, QueryHit{CellID: f.cellID, MBR: mbr, Record: string(line)})
		}
	}
	return hits, nil
}

// openCellFile returns the cached r-tree of name, or its raw contents when it
// is not an r-tree file.
func openCellFile(env *Env, name string) (*rtree.Tree, []byte, error) {
	size, err := env.FS.Length(name)
	if err != nil {
		return nil, nil, err
	}
	key := fmt.Sprintf("%s@%d", name, size)
	if t, ok := env.trees.Get(key); ok {
		return t, nil, nil
	}
	b, err := disk.ReadAll(env.FS, name)
	if err != nil {
		return nil, nil, err
	}
	if !rtree.IsRTree(b) {
		return nil, b, nil
	}
	t, err := rtree.Open(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open r-tree %s", name)
	}
	env.trees.Set(key, t, int64(len(b)))
	return t, nil, nil
}
