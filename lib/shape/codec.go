package shape

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

const (
	pointSize = 16
	rectSize  = 32
)

// AppendBinary appends [kind byte][payload] for s.
func AppendBinary(dst []byte, s Shape) []byte {
	dst = append(dst, byte(s.Kind()))
	switch v := s.(type) {
	case *Point:
		dst = appendF64(dst, v.X)
		dst = appendF64(dst, v.Y)
	case *Rect:
		dst = appendRect(dst, *v)
	case *CellInfo:
		dst = binary.AppendVarint(dst, v.ID)
		dst = appendRect(dst, v.Rect)
	case *TaggedShape:
		dst = binary.AppendVarint(dst, v.ID)
		dst = binary.AppendUvarint(dst, uint64(v.Source))
		dst = AppendBinary(dst, v.Shape)
	}
	return dst
}

// DecodeBinary decodes one shape from the front of b and returns it with the
// number of bytes consumed. An unrecognized kind tag is an error.
func DecodeBinary(b []byte) (Shape, int, error) {
	if len(b) == 0 {
		return nil, 0, errors.Wrap(ErrMalformed, "empty buffer")
	}
	kind := Kind(b[0])
	n := 1
	switch kind {
	case KindPoint:
		if len(b) < n+pointSize {
			return nil, 0, errors.Wrapf(ErrMalformed, "short point: %d bytes", len(b))
		}
		p := &Point{X: getF64(b[n:]), Y: getF64(b[n+8:])}
		return p, n + pointSize, nil
	case KindRect:
		if len(b) < n+rectSize {
			return nil, 0, errors.Wrapf(ErrMalformed, "short rect: %d bytes", len(b))
		}
		r := getRect(b[n:])
		return &r, n + rectSize, nil
	case KindCell:
		id, m := binary.Varint(b[n:])
		if m <= 0 {
			return nil, 0, errors.Wrap(ErrMalformed, "cell id")
		}
		n += m
		if len(b) < n+rectSize {
			return nil, 0, errors.Wrapf(ErrMalformed, "short cell: %d bytes", len(b))
		}
		return &CellInfo{ID: id, Rect: getRect(b[n:])}, n + rectSize, nil
	case KindTagged:
		id, m := binary.Varint(b[n:])
		if m <= 0 {
			return nil, 0, errors.Wrap(ErrMalformed, "tagged id")
		}
		n += m
		src, m := binary.Uvarint(b[n:])
		if m <= 0 {
			return nil, 0, errors.Wrap(ErrMalformed, "tagged source")
		}
		n += m
		inner, m, err := DecodeBinary(b[n:])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "tagged shape %d", id)
		}
		return &TaggedShape{ID: id, Source: int(src), Shape: inner}, n + m, nil
	default:
		return nil, 0, errors.Wrapf(ErrUnknownKind, "tag %d", b[0])
	}
}

func appendRect(dst []byte, r Rect) []byte {
	dst = appendF64(dst, r.X1)
	dst = appendF64(dst, r.Y1)
	dst = appendF64(dst, r.X2)
	return appendF64(dst, r.Y2)
}

func getRect(b []byte) Rect {
	return Rect{X1: getF64(b), Y1: getF64(b[8:]), X2: getF64(b[16:]), Y2: getF64(b[24:])}
}

func appendF64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

func getF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
