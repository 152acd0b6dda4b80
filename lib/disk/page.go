package disk

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// Page. buffer byte berukuran tetap, little-endian. dipakai codec node r-tree.
type Page struct {
	b []byte
}

func NewPage(size int) *Page {
	return &Page{b: make([]byte, size)}
}

func NewPageFromByteSlice(b []byte) *Page {
	return &Page{b: b}
}

func (p *Page) Size() int { return len(p.b) }

func (p *Page) PutUint16(offset int, val uint16) {
	binary.LittleEndian.PutUint16(p.b[offset:], val)
}

func (p *Page) GetUint16(offset int) uint16 {
	return binary.LittleEndian.Uint16(p.b[offset:])
}

func (p *Page) PutUint32(offset int, val uint32) {
	binary.LittleEndian.PutUint32(p.b[offset:], val)
}

func (p *Page) GetUint32(offset int) uint32 {
	return binary.LittleEndian.Uint32(p.b[offset:])
}

func (p *Page) PutUint64(offset int, val uint64) {
	binary.LittleEndian.PutUint64(p.b[offset:], val)
}

func (p *Page) GetUint64(offset int) uint64 {
	return binary.LittleEndian.Uint64(p.b[offset:])
}

func (p *Page) PutFloat64(offset int, val float64) {
	p.PutUint64(offset, math.Float64bits(val))
}

func (p *Page) GetFloat64(offset int) float64 {
	return math.Float64frombits(p.GetUint64(offset))
}

func (p *Page) PutBool(offset int, val bool) {
	var v byte
	if val {
		v = 1
	}
	p.b[offset] = v
}

func (p *Page) GetBool(offset int) bool {
	return p.b[offset] == 1
}

// PutBytes copies b to offset as is (no length prefix).
func (p *Page) PutBytes(offset int, b []byte) (int, error) {
	if offset+len(b) > len(p.b) {
		return 0, errors.Newf("put bytes out of bound: %d+%d > %d", offset, len(b), len(p.b))
	}
	return copy(p.b[offset:], b), nil
}

func (p *Page) Contents() []byte {
	return p.b
}
