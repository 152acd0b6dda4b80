package disk

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrExists = errors.New("file already exists")

// File. output stream yang tahu posisi tulisnya sekarang.
type File interface {
	io.Writer
	Pos() int64
	Close() error
}

type Reader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// FileSystem is the storage the writers and jobs run on.
type FileSystem interface {
	Create(name string, overwrite bool) (File, error)
	Open(name string) (Reader, error)
	Delete(name string) error
	Exists(name string) (bool, error)
	Length(name string) (int64, error)
	// List returns the names of the regular files directly under dir, sorted.
	List(dir string) ([]string, error)
	DefaultBlockSize() int64
}

// LocalFS. FileSystem di atas satu direktori lokal. semua nama relatif ke rootDir.
type LocalFS struct {
	rootDir   string
	blockSize int64
	latch     sync.Mutex
}

func NewLocalFS(rootDir string, blockSize int64) (*LocalFS, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create root %s", rootDir)
	}
	return &LocalFS{rootDir: rootDir, blockSize: blockSize}, nil
}

func (fs *LocalFS) path(name string) string {
	return filepath.Join(fs.rootDir, filepath.FromSlash(name))
}

func (fs *LocalFS) Create(name string, overwrite bool) (File, error) {
	p := fs.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, errors.Wrapf(err, "create dir for %s", name)
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(p, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(ErrExists, "%s", name)
		}
		return nil, errors.Wrapf(err, "create %s", name)
	}
	return &localFile{f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (fs *LocalFS) Open(name string) (Reader, error) {
	f, err := os.Open(fs.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return f, nil
}

func (fs *LocalFS) Delete(name string) error {
	if err := os.Remove(fs.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", name)
	}
	return nil
}

func (fs *LocalFS) Exists(name string) (bool, error) {
	_, err := os.Stat(fs.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", name)
}

func (fs *LocalFS) Length(name string) (int64, error) {
	fi, err := os.Stat(fs.path(name))
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", name)
	}
	return fi.Size(), nil
}

func (fs *LocalFS) List(dir string) ([]string, error) {
	fs.latch.Lock()
	defer fs.latch.Unlock()
	entries, err := os.ReadDir(fs.path(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, strings.TrimPrefix(filepath.ToSlash(filepath.Join(dir, e.Name())), "./"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *LocalFS) DefaultBlockSize() int64 {
	return fs.blockSize
}

type localFile struct {
	f   *os.File
	w   *bufio.Writer
	pos int64
}

func (lf *localFile) Write(p []byte) (int, error) {
	n, err := lf.w.Write(p)
	lf.pos += int64(n)
	return n, err
}

func (lf *localFile) Pos() int64 { return lf.pos }

func (lf *localFile) Close() error {
	if err := lf.w.Flush(); err != nil {
		lf.f.Close()
		return err
	}
	return lf.f.Close()
}

// ReadAll reads the whole file name.
func ReadAll(fs FileSystem, name string) ([]byte, error) {
	r, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return b, nil
}

// WriteFile creates name with overwrite and writes b to it.
func WriteFile(fs FileSystem, name string, b []byte) error {
	f, err := fs.Create(name, true)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	return f.Close()
}
