package disk

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFSReadWrite(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir(), 4096)
	require.NoError(t, err)

	f, err := fs.Create("out/cell_00001_0000", false)
	require.NoError(t, err)
	_, err = f.Write([]byte("1,2,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), f.Pos())
	_, err = f.Write([]byte("5,6,7,8\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(16), f.Pos())
	require.NoError(t, f.Close())

	_, err = fs.Create("out/cell_00001_0000", false)
	assert.True(t, errors.Is(err, ErrExists))

	n, err := fs.Length("out/cell_00001_0000")
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)

	r, err := fs.Open("out/cell_00001_0000")
	require.NoError(t, err)
	buf := make([]byte, 7)
	_, err = r.ReadAt(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, "5,6,7,8", string(buf))
	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	names, err := fs.List("out")
	require.NoError(t, err)
	assert.Equal(t, []string{"out/cell_00001_0000"}, names)

	f, err = fs.Create("out/cell_00001_0000", true)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	n, _ = fs.Length("out/cell_00001_0000")
	assert.Equal(t, int64(0), n)

	require.NoError(t, fs.Delete("out/cell_00001_0000"))
	ok, err := fs.Exists("out/cell_00001_0000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, fs.Delete("out/cell_00001_0000"))
	assert.Equal(t, int64(4096), fs.DefaultBlockSize())
}

func TestPage(t *testing.T) {
	page := NewPage(64)
	page.PutUint32(0, 1)
	page.PutUint16(4, 2)
	page.PutUint64(6, 3)
	page.PutFloat64(14, -7.5)
	page.PutBool(22, true)
	_, err := page.PutBytes(23, []byte("lintang"))
	require.NoError(t, err)
	_, err = page.PutBytes(60, []byte("lintang"))
	assert.Error(t, err)

	reader := NewPageFromByteSlice(page.Contents())
	assert.Equal(t, uint32(1), reader.GetUint32(0))
	assert.Equal(t, uint16(2), reader.GetUint16(4))
	assert.Equal(t, uint64(3), reader.GetUint64(6))
	assert.Equal(t, -7.5, reader.GetFloat64(14))
	assert.True(t, reader.GetBool(22))
	assert.Equal(t, "lintang", string(reader.Contents()[23:30]))
}
