package job

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
)

// split is the byte range [start,end) of one input file. A line belongs to
// the split its first byte falls in, so every line is read exactly once.
type split struct {
	name   string
	source int
	start  int64
	end    int64
}

// makeSplits cuts every input into splits of at most splitSize bytes. Empty
// files give no split.
func makeSplits(fs disk.FileSystem, names []string, splitSize int64) ([]split, int64, error) {
	if splitSize < 1 {
		splitSize = lib.DEFAULT_BLOCK_SIZE
	}
	var (
		splits []split
		total  int64
	)
	for i, name := range names {
		size, err := fs.Length(name)
		if err != nil {
			return nil, 0, err
		}
		total += size
		for start := int64(0); start < size; start += splitSize {
			end := start + splitSize
			if end > size {
				end = size
			}
			splits = append(splits, split{name: name, source: i, start: start, end: end})
		}
	}
	return splits, total, nil
}

// scanSplit calls fn with the offset and content of every non-empty line that
// starts inside sp. A split not at the start of its file skips the partial
// line it begins in; the previous split reads past its end to finish it.
func scanSplit(fs disk.FileSystem, sp split, fn func(off int64, line []byte) error) error {
	r, err := fs.Open(sp.name)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := r.Seek(sp.start, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek %s to %d", sp.name, sp.start)
	}
	br := bufio.NewReaderSize(r, 64*1024)
	pos := sp.start
	if sp.start != 0 {
		skipped, err := br.ReadSlice(lib.NEW_LINE)
		pos += int64(len(skipped))
		for err == bufio.ErrBufferFull {
			skipped, err = br.ReadSlice(lib.NEW_LINE)
			pos += int64(len(skipped))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", sp.name)
		}
	}
	for pos <= sp.end {
		line, err := br.ReadBytes(lib.NEW_LINE)
		if len(line) == 0 && err == io.EOF {
			return nil
		}
		off := pos
		pos += int64(len(line))
		if line = bytes.TrimRight(line, "\r\n"); len(line) > 0 {
			if ferr := fn(off, line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", sp.name)
		}
	}
	return nil
}

// scanFile scans all of name as a single split.
func scanFile(fs disk.FileSystem, name string, fn func(off int64, line []byte) error) error {
	size, err := fs.Length(name)
	if err != nil {
		return err
	}
	return scanSplit(fs, split{name: name, end: size}, fn)
}
