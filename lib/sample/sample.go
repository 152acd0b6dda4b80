// Package sample draws a small random sample of record centers from large
// line-delimited inputs.
package sample

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lintang-b-s/sgrid/lib"
	"github.com/lintang-b-s/sgrid/lib/disk"
	"github.com/lintang-b-s/sgrid/lib/logger"
	"github.com/lintang-b-s/sgrid/lib/metrics"
	"github.com/lintang-b-s/sgrid/lib/shape"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrExhausted = errors.New("sampler gave up: too many degenerate draws in a row")

type Options struct {
	// budget = total input bytes / Ratio
	Ratio         int64
	MaxLineLength int
	// consecutive degenerate draws tolerated before ErrExhausted
	MaxRetries int
	// 0 picks a random seed
	Seed    uint64
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Stats struct {
	TotalSize int64
	Budget    int64
	// Consumed is the sampled record bytes, newline included. The budget
	// bounds this figure: it stays below Budget + MaxLineLength.
	Consumed int64
	// WindowBytes is the raw storage traffic of every read window, rejected
	// draws included. It is not bounded by the budget.
	WindowBytes int64
	Samples     int
	Rejected    int
}

type Sampler struct {
	fs    disk.FileSystem
	parse func([]byte) (shape.Shape, error)
	opts  Options
	rng   *rand.Rand
	log   *zap.Logger
	every rate.Sometimes
}

func New(fs disk.FileSystem, parse func([]byte) (shape.Shape, error), opts Options) *Sampler {
	if opts.Ratio < 1 {
		opts.Ratio = lib.SAMPLE_RATIO
	}
	if opts.MaxLineLength <= lib.MIN_RECORD_LENGTH {
		opts.MaxLineLength = lib.MAX_LINE_LENGTH
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = lib.MAX_SAMPLE_RETRIES
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Sampler{
		fs:    fs,
		parse: parse,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:   logger.OrNop(opts.Logger),
		every: rate.Sometimes{Interval: time.Minute},
	}
}

type source struct {
	name  string
	start int64
	size  int64
	r     disk.Reader
}

// Sample returns the MBR centers of randomly picked records of names. The
// draw position is uniform over the concatenated inputs. Sampling stops once
// the accepted record bytes reach the budget, and never before one sample was
// taken.
func (s *Sampler) Sample(ctx context.Context, names []string) ([]shape.Point, Stats, error) {
	var st Stats
	sources := make([]*source, 0, len(names))
	defer func() {
		for _, src := range sources {
			if src.r != nil {
				src.r.Close()
			}
		}
	}()
	for _, name := range names {
		size, err := s.fs.Length(name)
		if err != nil {
			return nil, st, err
		}
		if size == 0 {
			continue
		}
		r, err := s.fs.Open(name)
		if err != nil {
			return nil, st, err
		}
		sources = append(sources, &source{name: name, start: st.TotalSize, size: size, r: r})
		st.TotalSize += size
	}
	if st.TotalSize == 0 {
		return nil, st, nil
	}
	st.Budget = st.TotalSize / s.opts.Ratio

	maxLine := s.opts.MaxLineLength
	window := make([]byte, 2*maxLine)
	var samples []shape.Point
	retries := 0
	for st.Consumed < st.Budget || len(samples) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		off := s.rng.Int64N(st.TotalSize)
		i := sort.Search(len(sources), func(i int) bool { return sources[i].start+sources[i].size > off })
		src := sources[i]

		line, n, err := readLine(src, off-src.start, window, maxLine)
		st.WindowBytes += int64(n)
		if err != nil {
			return nil, st, err
		}
		var p shape.Point
		ok := len(line) >= lib.MIN_RECORD_LENGTH
		if ok {
			sh, perr := s.parse(line)
			if ok = perr == nil; ok {
				p = sh.MBR().Center()
			}
		}
		if !ok {
			st.Rejected++
			retries++
			if retries > s.opts.MaxRetries {
				return nil, st, errors.Wrapf(ErrExhausted, "%d draws, last in %s", retries, src.name)
			}
			continue
		}
		retries = 0
		samples = append(samples, p)
		st.Consumed += int64(len(line)) + 1
		s.every.Do(func() {
			s.log.Info("sampling", zap.Int("samples", len(samples)),
				zap.Int64("consumed", st.Consumed), zap.Int64("budget", st.Budget))
		})
	}
	st.Samples = len(samples)
	s.opts.Metrics.SamplePoints(len(samples))
	s.log.Info("sample done", zap.Int("samples", st.Samples), zap.Int64("budget", st.Budget),
		zap.Int64("consumed", st.Consumed), zap.Int("rejected", st.Rejected))
	return samples, st, nil
}

// readLine returns the first whole line that starts after local (or at 0),
// or nil when there is none within reach. Draws near the end of a file are
// moved back by maxLine so that a record can still follow.
func readLine(src *source, local int64, window []byte, maxLine int) ([]byte, int, error) {
	if local > src.size-int64(maxLine) {
		local = max(0, src.size-int64(maxLine))
	}
	w := window[:min(int64(len(window)), src.size-local)]
	n, err := src.r.ReadAt(w, local)
	if err != nil && err != io.EOF {
		return nil, n, errors.Wrapf(err, "read %s at %d", src.name, local)
	}
	w = w[:n]
	atEOF := local+int64(n) >= src.size

	start := 0
	if local != 0 {
		idx := bytes.IndexByte(w, lib.NEW_LINE)
		if idx < 0 {
			return nil, n, nil
		}
		start = idx + 1
	}
	end := bytes.IndexByte(w[start:], lib.NEW_LINE)
	if end < 0 {
		if !atEOF {
			return nil, n, nil
		}
		end = len(w) - start
	}
	if end > maxLine-1 {
		return nil, n, nil
	}
	return bytes.TrimRight(w[start:start+end], "\r"), n, nil
}
