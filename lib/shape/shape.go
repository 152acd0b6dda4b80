// Package shape holds the geometric values that flow through partitioning,
// indexing and joining. The set of variants is closed: Point, Rect, CellInfo
// and TaggedShape. Every variant carries an MBR and can be written as one
// text line or as a tagged binary value.
package shape

import (
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownKind = errors.New("unknown shape kind")
	ErrMalformed   = errors.New("malformed shape")
)

type Kind uint8

const (
	KindPoint Kind = iota + 1
	KindRect
	KindCell
	KindTagged
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindRect:
		return "rect"
	case KindCell:
		return "cell"
	case KindTagged:
		return "tagged"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Shape. capability set yang dipakai sampler, writer, r-tree dan join.
type Shape interface {
	MBR() Rect
	Intersects(other Shape) bool
	DistanceTo(p Point) float64
	Clone() Shape
	Kind() Kind
	// AppendText appends the single-line text form (no line terminator).
	AppendText(dst []byte) []byte
	// ParseText replaces the receiver with the value parsed from line.
	ParseText(line []byte) error
}

// New returns a zero value of the stock kind named by name, ready for ParseText.
func New(name string) (Shape, error) {
	switch name {
	case "point":
		return &Point{}, nil
	case "rect", "":
		return &Rect{}, nil
	case "cell":
		return &CellInfo{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "stock shape %q", name)
}

// Parser returns a function that parses one text line into a fresh shape of
// the given stock kind.
func Parser(name string) (func(line []byte) (Shape, error), error) {
	if _, err := New(name); err != nil {
		return nil, err
	}
	return func(line []byte) (Shape, error) {
		s, _ := New(name)
		if err := s.ParseText(line); err != nil {
			return nil, err
		}
		return s, nil
	}, nil
}

// Text returns the text form of s as a string.
func Text(s Shape) string {
	return string(s.AppendText(nil))
}

func splitFields(line []byte, n int) ([][]byte, error) {
	fields := make([][]byte, 0, n)
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == ',' {
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	fields = append(fields, line[start:])
	if len(fields) != n {
		return nil, errors.Wrapf(ErrMalformed, "expected %d fields, got %d in %q", n, len(fields), line)
	}
	return fields, nil
}

func parseFloats(line []byte, dst ...*float64) error {
	fields, err := splitFields(line, len(dst))
	if err != nil {
		return err
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(string(trimSpace(f)), 64)
		if err != nil {
			return errors.Wrapf(ErrMalformed, "field %d of %q", i, line)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrMalformed, "field %d of %q is not finite", i, line)
		}
		*dst[i] = v
	}
	return nil
}

func cutID(line []byte) (int64, []byte, error) {
	for i := 0; i < len(line); i++ {
		if line[i] == ',' {
			id, err := strconv.ParseInt(string(trimSpace(line[:i])), 10, 64)
			if err != nil {
				return 0, nil, errors.Wrapf(ErrMalformed, "id of %q", line)
			}
			return id, line[i+1:], nil
		}
	}
	return 0, nil, errors.Wrapf(ErrMalformed, "missing id in %q", line)
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func appendFloat(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}
