package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lintang-b-s/sgrid/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, int64(lib.DEFAULT_BLOCK_SIZE), c.BlockSize)
	assert.Equal(t, lib.RTREE_DEGREE, c.RTree.Degree)
	assert.Equal(t, lib.BUILD_MODE_FAST, c.RTree.BuildMode)
	assert.Equal(t, int64(lib.SAMPLE_RATIO), c.Sample.Ratio)
	assert.Equal(t, lib.MAX_LINE_LENGTH, c.Sample.MaxLineLength)
	assert.Equal(t, lib.REPLICATION_OVERHEAD, c.Join.ReplicationOverhead)
	assert.False(t, c.Join.Dedup)
	assert.Positive(t, c.Join.Parallelism)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
block_size: 4096
shape: point
rtree:
  degree: 8
  build_mode: slow
writer:
  overwrite: true
sample:
  seed: 7
join:
  dedup: true
  parallelism: 3
logger:
  level: debug
  format: json
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), c.BlockSize)
	assert.Equal(t, lib.SHAPE_POINT, c.Shape)
	assert.Equal(t, 8, c.RTree.Degree)
	assert.Equal(t, lib.BUILD_MODE_SLOW, c.RTree.BuildMode)
	assert.True(t, c.Writer.Overwrite)
	assert.Equal(t, lib.MAX_CONCURRENT_CLOSES, c.Writer.MaxConcurrentCloses)
	assert.Equal(t, uint64(7), c.Sample.Seed)
	assert.True(t, c.Join.Dedup)
	assert.Equal(t, 3, c.Join.Parallelism)
	assert.Equal(t, "debug", c.Logger.Level)
}

func TestValidate(t *testing.T) {
	for _, doc := range []string{
		"rtree: {degree: 1}",
		"rtree: {build_mode: turbo}",
		"shape: polygon",
		"block_size: -1",
		"sample: {max_line_length: 3}",
		"join: {replication_overhead: -0.5}",
		"block_size: [1, 2]",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
