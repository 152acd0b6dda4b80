// Package config loads the sgrid job configuration from YAML.
package config

import (
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/logger"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BlockSize   int64         `yaml:"block_size"`
	Shape       string        `yaml:"shape"`
	RTree       RTreeConfig   `yaml:"rtree"`
	Writer      WriterConfig  `yaml:"writer"`
	Sample      SampleConfig  `yaml:"sample"`
	Join        JoinConfig    `yaml:"join"`
	Logger      logger.Config `yaml:"logger"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

type RTreeConfig struct {
	Degree    int    `yaml:"degree"`
	BuildMode string `yaml:"build_mode"`
}

type WriterConfig struct {
	MaxConcurrentCloses int  `yaml:"max_concurrent_closes"`
	Overwrite           bool `yaml:"overwrite"`
}

type SampleConfig struct {
	Ratio         int64  `yaml:"ratio"`
	MaxLineLength int    `yaml:"max_line_length"`
	MaxRetries    int    `yaml:"max_retries"`
	Seed          uint64 `yaml:"seed"`
}

type JoinConfig struct {
	ReplicationOverhead float64 `yaml:"replication_overhead"`
	Dedup               bool    `yaml:"dedup"`
	Parallelism         int     `yaml:"parallelism"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// Load reads path, fills zero fields with defaults and validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) ApplyDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = lib.DEFAULT_BLOCK_SIZE
	}
	if c.Shape == "" {
		c.Shape = lib.SHAPE_RECT
	}
	if c.RTree.Degree == 0 {
		c.RTree.Degree = lib.RTREE_DEGREE
	}
	if c.RTree.BuildMode == "" {
		c.RTree.BuildMode = lib.BUILD_MODE_FAST
	}
	if c.Writer.MaxConcurrentCloses == 0 {
		c.Writer.MaxConcurrentCloses = lib.MAX_CONCURRENT_CLOSES
	}
	if c.Sample.Ratio == 0 {
		c.Sample.Ratio = lib.SAMPLE_RATIO
	}
	if c.Sample.MaxLineLength == 0 {
		c.Sample.MaxLineLength = lib.MAX_LINE_LENGTH
	}
	if c.Sample.MaxRetries == 0 {
		c.Sample.MaxRetries = lib.MAX_SAMPLE_RETRIES
	}
	if c.Join.ReplicationOverhead == 0 {
		c.Join.ReplicationOverhead = lib.REPLICATION_OVERHEAD
	}
	if c.Join.Parallelism == 0 {
		c.Join.Parallelism = runtime.NumCPU()
	}
}

func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return errors.Newf("block_size must be positive, got %d", c.BlockSize)
	}
	if _, err := shape.New(c.Shape); err != nil {
		return errors.Wrap(err, "shape")
	}
	if c.RTree.Degree < 2 {
		return errors.Newf("rtree.degree must be at least 2, got %d", c.RTree.Degree)
	}
	if c.RTree.BuildMode != lib.BUILD_MODE_FAST && c.RTree.BuildMode != lib.BUILD_MODE_SLOW {
		return errors.Newf("rtree.build_mode must be %q or %q, got %q", lib.BUILD_MODE_FAST, lib.BUILD_MODE_SLOW, c.RTree.BuildMode)
	}
	if c.Writer.MaxConcurrentCloses < 1 {
		return errors.Newf("writer.max_concurrent_closes must be positive, got %d", c.Writer.MaxConcurrentCloses)
	}
	if c.Sample.Ratio < 1 {
		return errors.Newf("sample.ratio must be positive, got %d", c.Sample.Ratio)
	}
	if c.Sample.MaxLineLength <= lib.MIN_RECORD_LENGTH {
		return errors.Newf("sample.max_line_length must exceed %d, got %d", lib.MIN_RECORD_LENGTH, c.Sample.MaxLineLength)
	}
	if c.Sample.MaxRetries < 1 {
		return errors.Newf("sample.max_retries must be positive, got %d", c.Sample.MaxRetries)
	}
	if c.Join.ReplicationOverhead < 0 {
		return errors.Newf("join.replication_overhead must not be negative, got %g", c.Join.ReplicationOverhead)
	}
	if c.Join.Parallelism < 1 {
		return errors.Newf("join.parallelism must be positive, got %d", c.Join.Parallelism)
	}
	return nil
}
