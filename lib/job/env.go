// Package job runs the partition, spatial join and range query jobs on a
// FileSystem. Inputs are cut into byte-range splits and processed by a
// bounded set of goroutines, which is enough to run every job on one machine.
package job

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/lintang-b-s/sgrid/lib/config"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/logger"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/rtree"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/lintang-b-s/sgrid/lib/job")

const (
	treeCacheCounters = 1e4
	// open r-tree nodes kept across queries, in bytes
	treeCacheCost = 256 << 20
)

// Env is what every job needs: storage, settings, logging and metrics.
type Env struct {
	FS      disk.FileSystem
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	trees *ristretto.Cache[string, *rtree.Tree]
}

// NewEnv fills zero fields of cfg with defaults and rejects an invalid
// result.
func NewEnv(fs disk.FileSystem, cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*Env, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *rtree.Tree]{
		NumCounters: treeCacheCounters,
		MaxCost:     treeCacheCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create r-tree cache")
	}
	return &Env{
		FS:      fs,
		Config:  cfg,
		Logger:  logger.OrNop(log),
		Metrics: m,
		trees:   cache,
	}, nil
}

func (e *Env) Close() {
	e.trees.Close()
}

func (e *Env) parser() (func([]byte) (shape.Shape, error), error) {
	return shape.Parser(e.Config.Shape)
}
